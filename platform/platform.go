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

// Package platform is the small collaborator surface Crystal uses for the
// capabilities the original firmware hard-coded as board macros: radio
// oscillator control and the __WFE-style reset hook. Consumed by the
// driver, never embedded in it.
package platform

import "time"

// Platform is implemented once per deployment target; Local is the
// dependency-free default used by tests and the simulation harness.
type Platform interface {
	// RadioPower turns the radio oscillator on or off. The driver calls
	// this with true before the active part of an epoch and false during
	// the inter-epoch sleep window.
	RadioPower(on bool)

	// RequestReset is invoked when the synchronization tracker's reset
	// rule fires (prolonged sync and ack loss). reason is a short
	// human-readable cause, logged by the caller.
	RequestReset(reason string)

	// Now returns the current time. Exists so drivers and tests can be
	// pointed at a simulated clock instead of wall time.
	Now() time.Time
}

// Local is a Platform backed by the real wall clock and no-op radio power
// control, suitable for single-process simulation.
type Local struct {
	OnReset func(reason string)
}

func (Local) RadioPower(on bool) {}

func (l Local) RequestReset(reason string) {
	if l.OnReset != nil {
		l.OnReset(reason)
	}
}

func (Local) Now() time.Time { return time.Now() }
