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
	"github.com/d3s-trento/contiki-uwb-sub001/scan"
	"github.com/d3s-trento/contiki-uwb-sub001/synctrack"
	"github.com/d3s-trento/contiki-uwb-sub001/timing"
)

// maxCorrectHops bounds the relay count an S capture may have traveled
// through and still be trusted (MAX_CORRECT_HOPS).
const maxCorrectHops = 30

// runNonSink implements §4.8: scan, optional late join, then the per-epoch
// loop.
func (d *Driver) runNonSink(ctx context.Context) {
	layout := d.cfg.layout()

	scanRes, ok := scan.Run(ctx, d.medium, d.plat, layout, d.cfg.Period, d.cfg.ScanDuration)
	if !ok {
		d.callbacks.StartDone(false)
		return
	}

	tracker := &synctrack.Tracker{SinkID: scanRes.SinkID, TRefCorrected: scanRes.TRef}
	epoch := scanRes.Epoch
	skipS := false
	startingNTA := 0

	// Late-join detection: has the adopted reference already placed us
	// inside or past the TA chain?
	offs := d.plat.Now().Sub(tracker.TRefCorrected)
	if offs >= layout.TASStart() {
		startingNTA = int((offs+timing.InterPhaseGap-layout.TASStart())/layout.TADuration()) + 1
		skipS = true
		if offs >= d.cfg.Period {
			epoch++
			tracker.TRefCorrected = tracker.TRefCorrected.Add(d.cfg.Period)
		}
	}

	d.callbacks.StartDone(true)

	for !d.stopRequested() {
		tracker.BeginEpoch()
		nEmptyTs := 0
		nNoAcks := 0
		nBadAcks := 0
		nRadioErrs := 0
		hops := 0

		if !skipS {
			epoch++
			d.plat.RadioPower(true)
			d.callbacks.PreS()
			d.buf.Reset()
			guard := tracker.NextSGuard()
			sStart, sStop := timing.SSlot(tracker.TRefCorrected, d.cfg.WS, d.cfg.RefShift, guard)
			sRes, stopped := d.executeSlot(ctx, sStart, sStop, flood.NodeID(tracker.SinkID), d.buf.Bytes(packetbuf.SyncLen(d.cfg.PldsS)), d.cfg.NTxS, flood.WithSync)
			if stopped {
				return
			}

			accepted := false
			if sRes.NRx > 0 && sRes.TRefUpdated {
				if _, hdrEpoch, hok := d.buf.DecodeSync(); hok &&
					sRes.PayloadLen == packetbuf.SyncLen(d.cfg.PldsS) &&
					sRes.RelayCntFirstRx <= maxCorrectHops {
					tracker.UpdateFromS(sRes.TRef, d.cfg.Period)
					epoch = hdrEpoch
					hops = sRes.RelayCntFirstRx
					accepted = true
				}
			}
			if !accepted {
				tracker.MissS(d.cfg.Period)
			}
			d.callbacks.PostS(accepted, nil)
			d.setInfo(Info{Epoch: epoch, NTA: 0, Hops: uint8(hops), NMissedS: uint16(tracker.SyncMissed)})
			if d.logger != nil {
				d.logger.RecordS(epoch, accepted, 0)
			}
			d.buf.Reset()
		} else {
			skipS = false
		}

		nTA := startingNTA
		startingNTA = 0
		sleepOrder := false

		for {
			havePacket := false
			tPayload := d.callbacks.PreT()
			havePacket = tPayload != nil
			iTx := havePacket && tracker.SyncMissed < timing.NSilentToStopTx && tracker.NNoAckEpochs < timing.NSilentToStopTx

			d.buf.Reset()
			guardT := timing.TAGuard(timing.SyncState{
				SkewEstimated:   tracker.SkewEstimated,
				SyncMissed:      tracker.SyncMissed,
				SyncedThisEpoch: tracker.SyncedThisEpoch,
			}, iTx)
			tStart, tStop := timing.TSlot(tracker.TRefCorrected, layout, nTA, d.cfg.RefShift, guardT)

			var initiator flood.NodeID
			if iTx {
				initiator = flood.NodeID(d.nodeID)
				d.buf.EncodeData()
				d.buf.SetPayload(packetbuf.KindData, tPayload)
			} else {
				initiator = flood.UnknownInitiator
			}
			tRes, stopped := d.executeSlot(ctx, tStart, tStop, initiator, d.buf.Bytes(packetbuf.DataLen(d.cfg.PldsT)), d.cfg.NTxT, flood.WithoutSync)
			if stopped {
				return
			}

			correct := false
			switch {
			case tRes.ReceptionError:
				// A CRC-corrupt T counts as "something was sent", not
				// silence: n_empty_ts is left untouched rather than
				// incremented.
			case tRes.NRx > 0 && d.buf.DecodeData() && tRes.PayloadLen == packetbuf.DataLen(d.cfg.PldsT):
				correct = true
				nEmptyTs = 0
			default:
				nEmptyTs++
			}

			payload := d.buf.Payload(packetbuf.KindData, tRes.PayloadLen)
			d.callbacks.BetweenTA(correct, payload)
			d.buf.Reset()

			guardA := timing.TAGuard(timing.SyncState{
				SkewEstimated:   tracker.SkewEstimated,
				SyncMissed:      tracker.SyncMissed,
				SyncedThisEpoch: tracker.SyncedThisEpoch,
			}, false)
			syncMode := flood.WithoutSync
			if d.cfg.SyncAcks {
				syncMode = flood.WithSync
			}
			aStart, aStop := timing.ASlot(tracker.TRefCorrected, layout, nTA, d.cfg.RefShift, guardA)
			aRes, stopped := d.executeSlot(ctx, aStart, aStop, flood.NodeID(tracker.SinkID), d.buf.Bytes(packetbuf.AckLen(d.cfg.PldsA)), d.cfg.NTxA, syncMode)
			if stopped {
				return
			}

			ackGood := false
			if aRes.NRx > 0 {
				if ackEpoch, ackNTA, cmd, aok := d.buf.DecodeAck(); aok && int(ackNTA) == nTA &&
					aRes.PayloadLen == packetbuf.AckLen(d.cfg.PldsA) {
					ackGood = true
					nNoAcks = 0
					nBadAcks = 0
					epoch = ackEpoch
					if d.cfg.SyncAcks && aRes.TRefUpdated {
						cand := aRes.TRef.Add(-layout.AOffset(nTA))
						tracker.UpdateFromA(cand)
					}
					if cmd == packetbuf.CmdSleep {
						sleepOrder = true
					}
				} else {
					nBadAcks++
					if aRes.ReceptionError {
						nRadioErrs++
						if d.cfg.Xa > 0 && nRadioErrs > d.cfg.Xa {
							nNoAcks++
							nRadioErrs = 0
						}
					} else {
						nNoAcks++
					}
				}
			} else {
				switch {
				case d.cfg.Xa == 0:
					nNoAcks++
				case aRes.ReceptionError:
					nRadioErrs++
					if nRadioErrs > d.cfg.Xa {
						nNoAcks++
					}
				default:
					nNoAcks++
					nRadioErrs = 0
				}
			}

			d.callbacks.PostA(ackGood, nil)
			if d.logger != nil {
				d.logger.RecordT(epoch, nTA, correct, tRes.ReceptionError)
				d.logger.RecordA(epoch, nTA, ackGood)
			}
			d.buf.Reset()
			nTA++

			if sleepOrder ||
				nTA >= d.cfg.maxTAs() ||
				(int(epoch) >= d.cfg.NFullEpochs && (
					(havePacket && nNoAcks >= d.cfg.Z) ||
						(!havePacket && nNoAcks >= d.cfg.Y && nEmptyTs >= d.cfg.Y))) {
				break
			}
		}

		tracker.EndEpoch()
		d.setInfo(Info{Epoch: epoch, NTA: uint16(nTA), Hops: uint8(hops), NMissedS: uint16(tracker.SyncMissed)})
		if d.logger != nil {
			d.logger.EndEpoch(epoch, hops, tracker.PeriodSkew, tracker.SyncMissed, tracker.NNoAckEpochs, tracker.LogAckSkewErr)
		}

		expectedRef := tracker.TRefCorrected.Add(d.cfg.Period + tracker.PeriodSkew)
		d.callbacks.EpochEnd()
		d.plat.RadioPower(false)

		if tracker.ShouldReset() {
			if d.logger != nil {
				d.logger.RecordReset()
			}
			d.plat.RequestReset("prolonged sync and ack loss")
		}

		preEpochAt := expectedRef.Add(-(tracker.NextSGuard() + timing.InterPhaseGap))
		if stopped := d.waitUntil(ctx, preEpochAt); stopped {
			return
		}
		d.callbacks.PreEpoch()
		tracker.TRefCorrected = expectedRef
	}
}
