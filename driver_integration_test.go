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

import (
	"context"
	"testing"
	"time"

	"github.com/d3s-trento/contiki-uwb-sub001/internal/simflood"
	"github.com/d3s-trento/contiki-uwb-sub001/platform"
)

func integrationConfig(isSink bool) Config {
	return Config{
		Period:       300 * time.Millisecond,
		IsSink:       isSink,
		NTxS:         1, NTxT: 1, NTxA: 1,
		WS:           10 * time.Millisecond,
		WT:           5 * time.Millisecond,
		WA:           5 * time.Millisecond,
		R: 2, Y: 2, Z: 2,
		ScanDuration: 10,
		NFullEpochs:  0,
	}
}

// TestSinkEpochIsMonotonic exercises the sink alone against a silent medium:
// after two periods the sink's epoch counter must have reached at least 2,
// which requires each epoch's TA loop to terminate.
func TestSinkEpochIsMonotonic(t *testing.T) {
	net := simflood.NewNetwork(1)
	plat := platform.Local{}
	d := New(1, integrationConfig(true), NopCallbacks{}, net.NewMedium(1), plat, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false for a valid config")
	}
	time.Sleep(2 * integrationConfig(true).Period)
	d.Stop()

	info := d.GetInfo()
	if info.Epoch < 2 {
		t.Fatalf("Epoch = %d after 2 periods, want >= 2", info.Epoch)
	}
}

// TestNonSinkJoinsAndAdvancesEpochs runs a sink and a non-sink against a
// shared simulated medium and checks the non-sink successfully scans in and
// advances its own epoch counter (invariants: scan/late-join, monotonic
// epoch at non-sink).
func TestNonSinkJoinsAndAdvancesEpochs(t *testing.T) {
	net := simflood.NewNetwork(1)
	plat := platform.Local{}
	cfg := integrationConfig(false)

	sink := New(1, integrationConfig(true), NopCallbacks{}, net.NewMedium(1), plat, nil)
	if !sink.Start(context.Background()) {
		t.Fatal("sink Start returned false")
	}
	defer sink.Stop()

	nonSink := New(2, cfg, NopCallbacks{}, net.NewMedium(2), plat, nil)
	if !nonSink.Start(context.Background()) {
		t.Fatal("non-sink Start returned false")
	}

	time.Sleep(3 * cfg.Period)
	nonSink.Stop()

	info := nonSink.GetInfo()
	if info.Epoch == 0 {
		t.Fatal("non-sink never advanced past epoch 0; scan likely failed to join")
	}
}

// TestStopIsPromptAndIdempotent verifies Stop returns once the running
// goroutine observes the stop request, and that calling it twice is safe.
func TestStopIsPromptAndIdempotent(t *testing.T) {
	net := simflood.NewNetwork(1)
	plat := platform.Local{}
	d := New(1, integrationConfig(true), NopCallbacks{}, net.NewMedium(1), plat, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
	d.Stop() // must not panic or hang
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	net := simflood.NewNetwork(1)
	plat := platform.Local{}
	cfg := integrationConfig(true)
	cfg.Period = 0
	d := New(1, cfg, NopCallbacks{}, net.NewMedium(1), plat, nil)
	if d.Start(context.Background()) {
		d.Stop()
		t.Fatal("Start returned true for an invalid config")
	}
}
