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

// Package flood specifies the contract Crystal requires from the
// concurrent-transmission (flooding) primitive. It is consumed, never
// implemented, by this module's protocol packages; internal/simflood
// provides the one concrete implementation exercised by tests and the
// simulation harness.
package flood

import "time"

// NodeID identifies a node on the flood medium. The sink's own ID doubles
// as the "initiator" value non-sinks must pass when listening for the
// sink's floods.
type NodeID uint16

// UnknownInitiator is passed to Start by a receiver that does not know, or
// does not care, who the flood's initiator will be (e.g. a scanning node,
// or a non-transmitting non-sink during a T slot).
const UnknownInitiator NodeID = 0xFFFF

// SyncMode controls whether the pulse attempts to capture a common time
// reference in addition to propagating the payload.
type SyncMode int

const (
	WithoutSync SyncMode = iota
	WithSync
)

// Result is harvested after Stop. It mirrors the flood-primitive accessors
// named in the contract: n_rx, n_tx, payload_len, is_t_ref_updated, t_ref,
// relay_cnt_first_rx, initiator_id, status_reg.
type Result struct {
	NRx              int
	NTx              int
	PayloadLen       int
	TRefUpdated      bool
	TRef             time.Time
	RelayCntFirstRx  int
	InitiatorID      NodeID
	StatusReg        uint32
	ReceptionError   bool // PHY/CRC error reported by the radio this slot
	HighNoiseChannel bool // channel busy/high-noise reported this slot
}

// Pulse is one flood invocation: start, then stop, then harvest.
//
// Start: if initiatorID equals the node's own ID, the node transmits;
// otherwise it listens and relays on reception. buf/length describe the
// frame to send (meaningful only when transmitting). nTx bounds the number
// of Glossy-style retransmissions; syncMode requests reference capture.
//
// The flood must return a usable Result from Stop within the slot's
// configured width when Start was invoked at the slot's absolute start —
// callers (the slot executor) additionally enforce this with a wall-clock
// deadline and treat a still-running pulse at the deadline as zero
// receptions.
type Pulse interface {
	Start(initiatorID NodeID, buf []byte, nTx int, syncMode SyncMode)
	Stop() Result
}

// Medium opens pulses. One Medium instance is bound to one node; internal
// implementations route pulses between nodes sharing a collision domain.
type Medium interface {
	// NewPulse returns a Pulse bound to this node for one slot invocation.
	NewPulse() Pulse
}
