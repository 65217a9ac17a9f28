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

// Package timing computes absolute slot boundaries from an epoch reference
// and the configured slot layout, and selects guard widths from the current
// synchronization state.
package timing

import "time"

// Fixed layout constants. Values are chosen to preserve the qualitative
// ordering required by the guard policy (INIT_GUARD >> LONG_GUARD >
// SHORT_GUARD) rather than to match any specific radio's tick rate.
const (
	InterPhaseGap    = 1 * time.Millisecond
	InitGuard        = 20 * time.Millisecond
	LongGuard        = 2 * time.Millisecond
	ShortGuard       = 500 * time.Microsecond
	ShortGuardNoSync = 500 * time.Microsecond
	SinkEndGuard     = 800 * time.Microsecond
	ScanSlotDuration = 50 * time.Millisecond

	NMissedForInitGuard  = 3
	NSilentEpochsToReset = 100
	NSilentToStopTx      = 3
)

// Layout holds the per-epoch slot widths needed to derive absolute
// boundaries; it is a narrow projection of Config so this package does not
// depend on the crystal package.
type Layout struct {
	WS, WT, WA time.Duration
}

// TASStart is the offset from t_ref at which the TA chain begins.
func (l Layout) TASStart() time.Duration {
	return 2*InitGuard + l.WS + 2*InterPhaseGap
}

// TADuration is the span occupied by one TA pair.
func (l Layout) TADuration() time.Duration {
	return l.WT + l.WA + 2*InterPhaseGap
}

// TOffset is the offset from t_ref at which TA pair n's T slot begins,
// before guard and ref-shift compensation.
func (l Layout) TOffset(n int) time.Duration {
	return l.TASStart() + time.Duration(n)*l.TADuration()
}

// AOffset is the offset from t_ref at which TA pair n's A slot begins,
// before guard and ref-shift compensation. This is PHASE_A_OFFS(n).
func (l Layout) AOffset(n int) time.Duration {
	return l.TOffset(n) + l.WT + InterPhaseGap
}

// SSlot returns the absolute start/stop of the S slot for epoch reference
// tRef, using guard and refShift.
func SSlot(tRef time.Time, ws time.Duration, refShift, guard time.Duration) (start, stop time.Time) {
	start = tRef.Add(-refShift - guard)
	stop = start.Add(ws + 2*guard)
	return
}

// TSlot returns the absolute start/stop of TA pair n's T slot.
func TSlot(tRef time.Time, l Layout, n int, refShift, guard time.Duration) (start, stop time.Time) {
	start = tRef.Add(l.TOffset(n) - refShift - guard)
	stop = start.Add(l.WT + 2*guard)
	return
}

// ASlot returns the absolute start/stop of TA pair n's A slot.
func ASlot(tRef time.Time, l Layout, n int, refShift, guard time.Duration) (start, stop time.Time) {
	start = tRef.Add(l.AOffset(n) - refShift - guard)
	stop = start.Add(l.WA + 2*guard)
	return
}

// SyncState is the narrow slice of synchronization state the guard policy
// reads; it mirrors synctrack.Tracker's exported fields without importing
// that package.
type SyncState struct {
	SkewEstimated   bool
	SyncMissed      int
	SyncedThisEpoch bool
}

// SGuard selects the guard width for the S slot at a non-sink node.
func SGuard(s SyncState) time.Duration {
	if !s.SkewEstimated || s.SyncMissed >= NMissedForInitGuard {
		return InitGuard
	}
	return LongGuard
}

// TAGuard selects the guard width for a T or A slot at a non-sink node that
// is not itself the transmitter in this TA. isTransmitter forces a zero
// guard, matching "when the node itself is the T transmitter in this TA:
// guard = 0".
func TAGuard(s SyncState, isTransmitter bool) time.Duration {
	if isTransmitter {
		return 0
	}
	if !s.SkewEstimated || s.SyncMissed >= NMissedForInitGuard {
		return InitGuard
	}
	if !s.SyncedThisEpoch {
		return ShortGuardNoSync
	}
	return ShortGuard
}
