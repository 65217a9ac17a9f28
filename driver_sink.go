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

	"github.com/d3s-trento/contiki-uwb-sub001/flood"
	"github.com/d3s-trento/contiki-uwb-sub001/packetbuf"
	"github.com/d3s-trento/contiki-uwb-sub001/timing"
)

// runSink implements §4.7: INIT -> S_SEND -> TA_LOOP(n_ta=0) -> ... ->
// SLEEP_WAIT -> INIT.
func (d *Driver) runSink(ctx context.Context) {
	layout := d.cfg.layout()
	tRefRoot := d.plat.Now().Add(50 * timing.InterPhaseGap)
	var epoch uint16

	d.callbacks.StartDone(true)

	for !d.stopRequested() {
		// INIT
		epoch++
		nEmptyTs := 0
		nRadioErrs := 0

		// S_SEND
		d.plat.RadioPower(true)
		sPayload := d.callbacks.PreS()
		d.buf.Reset()
		d.buf.EncodeSync(d.nodeID, epoch)
		d.buf.SetPayload(packetbuf.KindSync, sPayload)
		sStart, sStop := timing.SSlot(tRefRoot, d.cfg.WS, d.cfg.RefShift, 0)
		sRes, stopped := d.executeSlot(ctx, sStart, sStop, flood.NodeID(d.nodeID), d.buf.Bytes(packetbuf.SyncLen(d.cfg.PldsS)), d.cfg.NTxS, flood.WithSync)
		if stopped {
			return
		}
		d.callbacks.PostS(sRes.NRx > 0, nil)
		if d.logger != nil {
			d.logger.RecordS(epoch, sRes.NRx > 0, sRes.NTx)
		}
		d.buf.Reset()

		// TA_LOOP
		nTA := 0
		sleepOrder := false
		maxTAs := d.cfg.maxTAs()
		for !sleepOrder && nTA < maxTAs {
			d.callbacks.PreT() // sink never transmits T; return value unused

			d.buf.Reset()
			tStart, tStop := timing.TSlot(tRefRoot, layout, nTA, d.cfg.RefShift, timing.SinkEndGuard)
			tRes, stopped := d.executeSlot(ctx, tStart, tStop, flood.UnknownInitiator, d.buf.Bytes(packetbuf.DataLen(d.cfg.PldsT)), d.cfg.NTxT, flood.WithoutSync)
			if stopped {
				return
			}

			correct := false
			switch {
			case tRes.ReceptionError:
				nRadioErrs++
			case tRes.NRx > 0 && d.buf.DecodeData() && tRes.PayloadLen == packetbuf.DataLen(d.cfg.PldsT):
				correct = true
				nEmptyTs = 0
				nRadioErrs = 0
			default:
				nEmptyTs++
			}

			payload := d.buf.Payload(packetbuf.KindData, tRes.PayloadLen)
			aPayload := d.callbacks.BetweenTA(correct, payload)
			if d.logger != nil {
				d.logger.RecordT(epoch, nTA, correct, tRes.ReceptionError)
			}
			d.buf.Reset()

			sleepOrder = int(epoch) >= d.cfg.NFullEpochs && (
				nTA >= maxTAs-1 ||
					nEmptyTs >= d.cfg.dynamicNEmpty(nTA) ||
					(d.cfg.X > 0 && nRadioErrs >= d.cfg.X))

			cmd := packetbuf.CmdAwake
			if sleepOrder {
				cmd = packetbuf.CmdSleep
			}
			d.buf.EncodeAck(epoch, uint16(nTA), cmd)
			d.buf.SetPayload(packetbuf.KindAck, aPayload)

			syncMode := flood.WithoutSync
			if d.cfg.SyncAcks {
				syncMode = flood.WithSync
			}
			aStart, aStop := timing.ASlot(tRefRoot, layout, nTA, d.cfg.RefShift, 0)
			aRes, stopped := d.executeSlot(ctx, aStart, aStop, flood.NodeID(d.nodeID), d.buf.Bytes(packetbuf.AckLen(d.cfg.PldsA)), d.cfg.NTxA, syncMode)
			if stopped {
				return
			}
			d.callbacks.PostA(aRes.NRx > 0, nil)
			if d.logger != nil {
				d.logger.RecordA(epoch, nTA, aRes.NRx > 0)
			}
			d.buf.Reset()
			nTA++
		}

		d.setInfo(Info{Epoch: epoch, NTA: uint16(nTA)})
		if d.logger != nil {
			d.logger.EndEpoch(epoch, 0, 0, 0, 0, 0)
		}

		// SLEEP_WAIT
		d.plat.RadioPower(false)
		tRefRoot = tRefRoot.Add(d.cfg.Period)
		wake := tRefRoot.Add(-(timing.InitGuard + timing.InterPhaseGap))
		d.callbacks.EpochEnd()
		if stopped := d.waitUntil(ctx, wake); stopped {
			return
		}
		d.callbacks.PreEpoch()
	}
}
