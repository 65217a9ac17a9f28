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

// Package synctrack maintains the non-sink's epoch reference timestamp,
// skew estimate, and consecutive-miss counters, and applies outlier
// rejection to ACK-derived reference candidates.
package synctrack

import (
	"time"

	"github.com/d3s-trento/contiki-uwb-sub001/timing"
)

// AckOutlierThreshold is the maximum acceptable disagreement between an
// ACK-derived reference candidate and the currently trusted reference,
// once the node is already synchronized this epoch. Corresponds to the
// "60 ticks" bound named in the synchronization tracker's design.
const AckOutlierThreshold = 2 * time.Millisecond

// Tracker holds cross-epoch synchronization state for a non-sink node.
type Tracker struct {
	TRefCorrected time.Time
	tRefSkewed    time.Time
	haveSkewed    bool

	SyncMissed     int
	SkewEstimated  bool
	PeriodSkew     time.Duration
	SyncedWithAck  bool // this epoch
	SyncedThisEpoch bool // via S or accepted A, this epoch
	NNoAckEpochs   int

	SinkID uint16

	LogAckSkewErr int
}

// BeginEpoch clears the per-epoch flags. Call once at the top of each
// epoch, before any S/A update.
func (t *Tracker) BeginEpoch() {
	t.SyncedWithAck = false
	t.SyncedThisEpoch = false
}

// UpdateFromS records a valid S capture: tRefFlood is the locally captured
// reference, period the configured epoch length. The caller has already
// validated header type, length, and MAX_CORRECT_HOPS.
func (t *Tracker) UpdateFromS(tRefFlood time.Time, period time.Duration) {
	if t.haveSkewed {
		elapsed := t.SyncMissed + 1
		drift := tRefFlood.Sub(t.tRefSkewed.Add(period))
		t.PeriodSkew = drift / time.Duration(elapsed)
		t.SkewEstimated = true
	}
	t.TRefCorrected = tRefFlood
	t.tRefSkewed = tRefFlood
	t.haveSkewed = true
	t.SyncMissed = 0
	t.SyncedThisEpoch = true
}

// MissS records an epoch with no valid S update: the skew-free baseline
// is extrapolated forward by one period alone, so a later capture still
// measures a clean multi-period drift. TRefCorrected is left as the
// caller's externally-scheduled estimate, not re-derived here.
func (t *Tracker) MissS(period time.Duration) {
	t.SyncMissed++
	if t.haveSkewed {
		t.tRefSkewed = t.tRefSkewed.Add(period)
	}
}

// UpdateFromA offers an ACK-derived reference candidate (the caller has
// already subtracted the A-slot offset of its TA index). It applies
// outlier rejection and reports whether the candidate was accepted.
func (t *Tracker) UpdateFromA(candidate time.Time) (accepted bool) {
	if t.SyncedThisEpoch {
		delta := candidate.Sub(t.TRefCorrected)
		if delta < 0 {
			delta = -delta
		}
		if delta > AckOutlierThreshold {
			t.LogAckSkewErr++
			return false
		}
	}
	t.TRefCorrected = candidate
	t.SyncedWithAck = true
	t.SyncedThisEpoch = true
	t.NNoAckEpochs = 0
	return true
}

// EndEpoch accounts for an epoch in which no ACK-based reference was ever
// accepted.
func (t *Tracker) EndEpoch() {
	if !t.SyncedWithAck {
		t.NNoAckEpochs++
	}
}

// NextSGuard picks the guard for the next scheduled S slot, per §4.1's
// non-sink guard policy.
func (t *Tracker) NextSGuard() time.Duration {
	return timing.SGuard(timing.SyncState{
		SkewEstimated: t.SkewEstimated,
		SyncMissed:    t.SyncMissed,
	})
}

// ShouldReset reports whether prolonged sync and ack loss should trigger a
// platform reset request.
func (t *Tracker) ShouldReset() bool {
	return t.SyncMissed > timing.NSilentEpochsToReset && t.NNoAckEpochs > timing.NSilentEpochsToReset
}
