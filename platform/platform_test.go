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

package platform

import (
	"testing"
	"time"
)

func TestLocalRequestResetInvokesCallback(t *testing.T) {
	var reason string
	l := Local{OnReset: func(r string) { reason = r }}
	l.RequestReset("prolonged sync and ack loss")
	if reason != "prolonged sync and ack loss" {
		t.Fatalf("reason = %q, want %q", reason, "prolonged sync and ack loss")
	}
}

func TestLocalRequestResetToleratesNilCallback(t *testing.T) {
	l := Local{}
	l.RequestReset("no listener") // must not panic
}

func TestLocalNowIsCloseToWallClock(t *testing.T) {
	l := Local{}
	if d := l.Now().Sub(time.Now()); d > time.Second || d < -time.Second {
		t.Fatalf("Local.Now() drifted too far from time.Now(): %v", d)
	}
}

func TestLocalRadioPowerIsNoop(t *testing.T) {
	var l Local
	l.RadioPower(true)
	l.RadioPower(false) // must not panic
}
