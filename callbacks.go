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

package crystal

// Callbacks is the capability set the embedding application supplies.
// Every method is invoked synchronously between slots, on the driver's own
// goroutine; none may block or allocate on a hot path in a real deployment,
// mirroring the "timer-callback context" constraint of the original
// firmware's interrupt-context callbacks.
type Callbacks interface {
	// PreS is called before each S slot; it returns the application's S
	// payload bytes (length must equal Config.PldsS).
	PreS() []byte
	// PostS is called after S.
	PostS(received bool, payload []byte)

	// PreT is called before each T slot. A non-nil return means "I have
	// data to send this TA"; its length must equal Config.PldsT.
	PreT() []byte
	// BetweenTA is called after T and before A. Its return is the A
	// payload (the sink uses it; a non-sink's return value is ignored).
	BetweenTA(received bool, payload []byte) []byte
	// PostA is called after A.
	PostA(received bool, payload []byte)

	// EpochEnd and PreEpoch bracket the inter-epoch sleep window.
	EpochEnd()
	PreEpoch()

	// StartDone fires once, after scan succeeds or fails (non-sink) or
	// immediately (sink).
	StartDone(success bool)
}

// NopCallbacks is a Callbacks implementation that does nothing and never
// transmits; useful for tests that only exercise the driver's own state.
type NopCallbacks struct{}

func (NopCallbacks) PreS() []byte                               { return nil }
func (NopCallbacks) PostS(received bool, payload []byte)        {}
func (NopCallbacks) PreT() []byte                               { return nil }
func (NopCallbacks) BetweenTA(received bool, payload []byte) []byte { return nil }
func (NopCallbacks) PostA(received bool, payload []byte)        {}
func (NopCallbacks) EpochEnd()                                  {}
func (NopCallbacks) PreEpoch()                                  {}
func (NopCallbacks) StartDone(success bool)                     {}
