// Copyright 2025 The Crystal Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package timing

import (
	"testing"
	"time"
)

func TestSGuardFallsBackToInitGuard(t *testing.T) {
	cases := []struct {
		name string
		s    SyncState
		want time.Duration
	}{
		{"never synced", SyncState{SkewEstimated: false}, InitGuard},
		{"too many misses", SyncState{SkewEstimated: true, SyncMissed: NMissedForInitGuard}, InitGuard},
		{"healthy", SyncState{SkewEstimated: true, SyncMissed: 0}, LongGuard},
	}
	for _, c := range cases {
		if got := SGuard(c.s); got != c.want {
			t.Errorf("%s: SGuard = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestTAGuardTransmitterForcesZero(t *testing.T) {
	s := SyncState{SkewEstimated: false}
	if got := TAGuard(s, true); got != 0 {
		t.Fatalf("TAGuard(isTransmitter=true) = %v, want 0", got)
	}
}

func TestTAGuardReceiverSelection(t *testing.T) {
	cases := []struct {
		name string
		s    SyncState
		want time.Duration
	}{
		{"never synced", SyncState{SkewEstimated: false}, InitGuard},
		{"too many misses", SyncState{SkewEstimated: true, SyncMissed: NMissedForInitGuard}, InitGuard},
		{"synced before but not this epoch", SyncState{SkewEstimated: true, SyncedThisEpoch: false}, ShortGuardNoSync},
		{"fully synced", SyncState{SkewEstimated: true, SyncedThisEpoch: true}, ShortGuard},
	}
	for _, c := range cases {
		if got := TAGuard(c.s, false); got != c.want {
			t.Errorf("%s: TAGuard = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSlotOffsetsAreMonotonic(t *testing.T) {
	l := Layout{WS: 5 * time.Millisecond, WT: 3 * time.Millisecond, WA: 3 * time.Millisecond}
	if l.TOffset(1) <= l.TOffset(0) {
		t.Fatal("TOffset is not increasing with n")
	}
	if l.AOffset(0) <= l.TOffset(0) {
		t.Fatal("AOffset(n) should follow TOffset(n)")
	}
}

func TestTSlotHonorsGuardAndRefShift(t *testing.T) {
	l := Layout{WS: 5 * time.Millisecond, WT: 3 * time.Millisecond, WA: 3 * time.Millisecond}
	tRef := time.Unix(1000, 0)
	refShift := 100 * time.Microsecond
	guard := 500 * time.Microsecond

	start, stop := TSlot(tRef, l, 0, refShift, guard)
	wantStart := tRef.Add(l.TOffset(0) - refShift - guard)
	if !start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", start, wantStart)
	}
	if stop.Sub(start) != l.WT+2*guard {
		t.Fatalf("slot width = %v, want %v", stop.Sub(start), l.WT+2*guard)
	}
}
