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

// Package scan is the single-shot bootstrap state machine a non-sink runs
// before its first regular epoch: listen on short slots until an S or A
// flood yields a valid epoch reference, or the scan budget expires.
package scan

import (
	"context"
	"time"

	"github.com/d3s-trento/contiki-uwb-sub001/flood"
	"github.com/d3s-trento/contiki-uwb-sub001/packetbuf"
	"github.com/d3s-trento/contiki-uwb-sub001/platform"
	"github.com/d3s-trento/contiki-uwb-sub001/timing"
)

// Result is the adopted reference on a successful scan.
type Result struct {
	Epoch  uint16
	SinkID uint16
	TRef   time.Time
	NTA    uint16
	// FromAck records whether the adopted reference came from an A frame
	// (late join) rather than an S frame.
	FromAck bool
}

// Run executes the scan/bootstrap procedure and blocks until it succeeds,
// its budget (period * scanDuration) is exhausted, or ctx is cancelled.
func Run(ctx context.Context, medium flood.Medium, plat platform.Platform, layout timing.Layout, period time.Duration, scanDuration int) (Result, bool) {
	budget := time.Duration(scanDuration) * period
	deadline := plat.Now().Add(budget)

	var buf packetbuf.Buffer
	for plat.Now().Before(deadline) {
		if ctx.Err() != nil {
			return Result{}, false
		}

		buf.Reset()
		pulse := medium.NewPulse()
		pulse.Start(flood.UnknownInitiator, buf.Bytes(packetbuf.MaxLen), 0, flood.WithSync)
		sleepCtx(ctx, timing.ScanSlotDuration)
		res := pulse.Stop()

		if res.NRx == 0 || !res.TRefUpdated {
			continue
		}

		if _, epoch, ok := buf.DecodeSync(); ok && res.PayloadLen >= packetbuf.TagLen+packetbuf.SyncHdrLen {
			return Result{Epoch: epoch, SinkID: uint16(res.InitiatorID), TRef: res.TRef, NTA: 0}, true
		}

		if epoch, nTA, _, ok := buf.DecodeAck(); ok && res.PayloadLen >= packetbuf.TagLen+packetbuf.AckHdrLen {
			tRef := res.TRef.Add(-layout.AOffset(int(nTA)))
			return Result{Epoch: epoch, SinkID: uint16(res.InitiatorID), TRef: tRef, NTA: nTA, FromAck: true}, true
		}
		// Unrecognized frame: keep scanning on the same channel.
	}
	return Result{}, false
}

// sleepCtx blocks until d elapses or ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
