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

// Package crystal implements the Crystal synchronous data-collection
// protocol: epoch scheduling, the S/T/A slot state machine at sink and
// non-sink, time synchronization, guard policy, and scan/bootstrap.
package crystal

import (
	"errors"
	"time"

	"github.com/d3s-trento/contiki-uwb-sub001/packetbuf"
	"github.com/d3s-trento/contiki-uwb-sub001/timing"
)

// MaxPeriod mirrors CRYSTAL_MAX_PERIOD: the largest period a configuration
// may request.
const MaxPeriod = 512 * time.Second

// MaxScanEpochs mirrors CRYSTAL_MAX_SCAN_EPOCHS.
const MaxScanEpochs = 200

// NodeID identifies this node on the network.
type NodeID = uint16

// Config is fixed for the lifetime of a Start/Stop run.
type Config struct {
	Period time.Duration // epoch length
	IsSink bool

	NTxS, NTxT, NTxA    int           // flood retransmissions per slot kind
	WS, WT, WA          time.Duration // max slot durations
	PldsS, PldsT, PldsA int           // application payload bytes per slot kind

	R  int // consecutive empty T slots -> sink terminates epoch
	Y  int // consecutive empty TA pairs -> non-transmitting non-sink terminates
	Z  int // consecutive un-acked A slots -> transmitting non-sink terminates
	X  int // consecutive T reception errors -> sink terminates
	Xa int // consecutive A reception errors tolerated by non-sink

	ScanDuration int // scan budget, multiples of Period

	// RefShift compensates for the difference between the sink's transmit
	// reference and a receiver's frame-delimiter capture. Radio/flood
	// dependent; 0 when the flood primitive already compensates. Per the
	// design notes this is a configuration input, never a hard-coded
	// constant.
	RefShift time.Duration

	// Channel is retained for a future channel-hopping sink hook; inert in
	// this implementation (single channel).
	Channel int

	// NFullEpochs is CRYSTAL_N_FULL_EPOCHS: epochs before termination
	// shortcuts (sink's dynamic-nempty/x bail-out, non-sink's y/z bail-out)
	// are allowed to fire.
	NFullEpochs int

	// SyncAcks enables reference capture on A slots (CRYSTAL_SYNC_ACKS).
	SyncAcks bool
}

var (
	ErrBadPeriod       = errors.New("crystal: period must be > 0 and <= MaxPeriod")
	ErrBadScanDuration = errors.New("crystal: scan_duration must be > 0 and <= MaxScanEpochs")
	ErrPayloadTooLarge = errors.New("crystal: header + payload exceeds packetbuf.MaxLen")
)

// Validate checks the constraints named in the control surface: all
// hdr+plds <= PKT_BUF, non-zero period <= MAX_PERIOD, non-zero
// scan_duration <= MAX_SCAN_EPOCHS.
func (c Config) Validate() error {
	if c.Period <= 0 || c.Period > MaxPeriod {
		return ErrBadPeriod
	}
	if c.ScanDuration <= 0 || c.ScanDuration > MaxScanEpochs {
		return ErrBadScanDuration
	}
	if packetbuf.SyncLen(c.PldsS) > packetbuf.MaxLen ||
		packetbuf.DataLen(c.PldsT) > packetbuf.MaxLen ||
		packetbuf.AckLen(c.PldsA) > packetbuf.MaxLen {
		return ErrPayloadTooLarge
	}
	return nil
}

func (c Config) layout() timing.Layout {
	return timing.Layout{WS: c.WS, WT: c.WT, WA: c.WA}
}

// dynamicNEmpty implements CRYSTAL_SINK_MAX_EMPTY_TS_DYNAMIC: the sink
// forces r=1 right after the very first TA pair, then uses the configured
// r for every subsequent one.
func (c Config) dynamicNEmpty(nTA int) int {
	if nTA == 1 {
		return 1
	}
	return c.R
}

// maxTAs is CRYSTAL_MAX_TAS: the largest number of TA pairs that fit
// between the end of the TA-chain start offset and the end of the epoch
// period.
func (c Config) maxTAs() int {
	l := c.layout()
	avail := c.Period - l.TASStart()
	if avail <= 0 {
		return 0
	}
	return int(avail / l.TADuration())
}

// Info is the read-only live status snapshot returned by GetInfo.
type Info struct {
	Epoch     uint16
	NTA       uint16
	NMissedS  uint16
	Hops      uint8
}
