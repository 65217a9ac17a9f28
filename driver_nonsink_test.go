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

	"github.com/d3s-trento/contiki-uwb-sub001/flood"
	"github.com/d3s-trento/contiki-uwb-sub001/packetbuf"
)

func nonSinkTestConfig() Config {
	return Config{
		Period: 5 * time.Second,
		IsSink: false,
		NTxS:   1, NTxT: 1, NTxA: 1,
		// WS is deliberately large relative to the scan's fixed
		// timing.ScanSlotDuration so TASStart comfortably exceeds the
		// time the scan itself consumes, keeping these tests on the
		// "regular join" path rather than the late-join path.
		WS: 80 * time.Millisecond,
		WT: 5 * time.Millisecond,
		WA: 5 * time.Millisecond,
		Y: 2, Z: 2, Xa: 0,
		ScanDuration: 5,
		NFullEpochs:  0,
	}
}

func syncScriptedCall(sinkID, epoch uint16) scriptedCall {
	var b packetbuf.Buffer
	b.EncodeSync(sinkID, epoch)
	return scriptedCall{
		rxFrame: b.Bytes(packetbuf.SyncLen(0)),
		result: flood.Result{
			NRx: 1, TRefUpdated: true, TRef: time.Now(),
			PayloadLen: packetbuf.SyncLen(0), InitiatorID: flood.NodeID(sinkID),
		},
	}
}

func ackScriptedCall(epoch, nTA uint16, cmd uint8) scriptedCall {
	var b packetbuf.Buffer
	b.EncodeAck(epoch, nTA, cmd)
	return scriptedCall{
		rxFrame: b.Bytes(packetbuf.AckLen(0)),
		result:  flood.Result{NRx: 1, PayloadLen: packetbuf.AckLen(0)},
	}
}

func buildTAScript(n int, tCall, aCall scriptedCall) []scriptedCall {
	out := make([]scriptedCall, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, tCall, aCall)
	}
	return out
}

// TestNonSinkJoinsViaScanAndAdvancesEpoch exercises the scan/bootstrap
// (§4.6) and the S-slot update (§4.5): a valid S capture adopts the
// sink's epoch and advances past 0.
func TestNonSinkJoinsViaScanAndAdvancesEpoch(t *testing.T) {
	script := []scriptedCall{
		syncScriptedCall(7, 41), // scan
		syncScriptedCall(7, 41), // first regular S
	}
	script = append(script, buildTAScript(1, scriptedCall{}, scriptedCall{})...)

	med := &sequentialMedium{script: script}
	d := New(2, nonSinkTestConfig(), NopCallbacks{}, med, platformStub{}, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	defer d.Stop()

	waitForCalls(t, med, 4, 2*time.Second)
	info := d.GetInfo()
	if info.Epoch == 0 {
		t.Fatal("non-sink never adopted an epoch from the scan/S capture")
	}
}

// TestNonSinkStopsAfterYEmptyTAsOnPlainSilence exercises testable property
//4: a node with have_packet == false gives up after y consecutive empty
// TAs (here with both the T and A channel silent, not radio-corrupt).
func TestNonSinkStopsAfterYEmptyTAsOnPlainSilence(t *testing.T) {
	script := []scriptedCall{
		syncScriptedCall(7, 1),
		syncScriptedCall(7, 1),
	}
	script = append(script, buildTAScript(2, scriptedCall{}, scriptedCall{})...)

	med := &sequentialMedium{script: script}
	cfg := nonSinkTestConfig()
	cfg.Y = 2
	d := New(2, cfg, NopCallbacks{}, med, platformStub{}, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	defer d.Stop()

	waitForCalls(t, med, 6, 2*time.Second) // scan + S + 2*(T,A)
	time.Sleep(150 * time.Millisecond)
	if got := med.callCount(); got != 6 {
		t.Fatalf("call count = %d after y empty TAs, want 6 (epoch should have ended)", got)
	}
}

// TestCrcCorruptLeavesEmptyCounterUnchanged documents the Open Question
// from §9 / §4.8: a CRC-corrupt T is deliberately NOT counted as an empty
// TA. Regression-only: it preserves observed behavior without asserting
// this is the intended design.
func TestCrcCorruptLeavesEmptyCounterUnchanged(t *testing.T) {
	script := []scriptedCall{
		syncScriptedCall(7, 1),
		syncScriptedCall(7, 1),
	}
	corruptT := scriptedCall{result: flood.Result{ReceptionError: true}}
	noAck := scriptedCall{}
	script = append(script, buildTAScript(5, corruptT, noAck)...)

	med := &sequentialMedium{script: script}
	cfg := nonSinkTestConfig()
	cfg.Y = 2
	d := New(2, cfg, NopCallbacks{}, med, platformStub{}, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	defer d.Stop()

	// With plain silence the epoch would have ended after 2*(T,A) past the
	// scan+S pair (6 calls total, see TestNonSinkStopsAfterYEmptyTAsOnPlainSilence).
	// CRC-corrupt T leaves n_empty_ts at 0, so the y-based bailout never
	// fires; all 5 scripted TA pairs should run to completion.
	waitForCalls(t, med, 12, 4*time.Second) // scan + S + 5*(T,A)
}

// TestNonSinkFollowsSinkSleepCommand exercises §4.8's ACK interpretation:
// an ACK whose cmd is SLEEP ends the TA loop immediately, regardless of
// how few TA pairs have run.
func TestNonSinkFollowsSinkSleepCommand(t *testing.T) {
	script := []scriptedCall{
		syncScriptedCall(7, 1),
		syncScriptedCall(7, 1),
		{result: flood.Result{}},        // T0: silence
		ackScriptedCall(1, 0, packetbuf.CmdSleep),
	}

	med := &sequentialMedium{script: script}
	d := New(2, nonSinkTestConfig(), NopCallbacks{}, med, platformStub{}, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	defer d.Stop()

	waitForCalls(t, med, 4, 2*time.Second)
	time.Sleep(150 * time.Millisecond)
	if got := med.callCount(); got != 4 {
		t.Fatalf("call count = %d after SLEEP ack, want 4 (TA loop should have stopped)", got)
	}
}

// TestNonSinkTransmitsOnlyWhenAppHasData exercises the i_tx decision in
// §4.8: PreT returning data makes the node initiate T with that payload;
// PreT returning nil means the node listens in T rather than transmitting.
func TestNonSinkTransmitsOnlyWhenAppHasData(t *testing.T) {
	script := []scriptedCall{
		syncScriptedCall(7, 1),
		syncScriptedCall(7, 1),
	}
	script = append(script, buildTAScript(1, scriptedCall{}, scriptedCall{})...)

	med := &sequentialMedium{script: script}
	var calls int
	cb := &funcCallbacks{preT: func() []byte {
		calls++
		if calls == 1 {
			return []byte{1, 2, 3, 4}
		}
		return nil
	}}
	cfg := nonSinkTestConfig()
	cfg.PldsT = 4

	d := New(2, cfg, cb, med, platformStub{}, nil)
	if !d.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	defer d.Stop()

	waitForCalls(t, med, 6, 2*time.Second) // scan + S + (T,A) with data + (T,A) without
	if calls == 0 {
		t.Fatal("PreT was never invoked")
	}
	t0 := med.capturedAt(2)
	if len(t0) < packetbuf.DataLen(4) || t0[0] != byte(packetbuf.KindData) || string(t0[1:5]) != "\x01\x02\x03\x04" {
		t.Fatalf("T0 frame = %v, want DATA tag followed by [1 2 3 4]", t0)
	}
	t1 := med.capturedAt(4)
	if len(t1) == 0 || t1[0] == byte(packetbuf.KindData) {
		t.Fatalf("T1 frame = %v, want no DATA frame when PreT returns nil", t1)
	}
}
