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

// Package packetbuf lays out the three Crystal frame kinds (S, T, A) over a
// shared fixed-size buffer and encodes/decodes their packed, little-endian
// headers.
package packetbuf

import "encoding/binary"

// Kind is the single-byte frame type tag, always the first byte on the wire.
type Kind uint8

const (
	KindSync Kind = 0x01 // S: synchronization beacon
	KindData Kind = 0x02 // T: one-to-sink data
	KindAck  Kind = 0x03 // A: acknowledgment + sleep/awake command
)

// Ack commands carried in an A frame.
const (
	CmdAwake uint8 = 0x11
	CmdSleep uint8 = 0x22
)

// Header lengths, in bytes, not counting the type tag.
const (
	SyncHdrLen = 4 // src:2, epoch:2
	DataHdrLen = 0
	AckHdrLen  = 4 // epoch:2, n_ta:1, cmd:1
)

const TagLen = 1

// MaxLen bounds the shared buffer. It must be large enough for the widest
// configured frame; callers size their buffer via SyncLen/DataLen/AckLen.
const MaxLen = 256

// SyncLen returns the total wire length of an S frame with the given
// application payload size.
func SyncLen(pldS int) int { return TagLen + SyncHdrLen + pldS }

// DataLen returns the total wire length of a T frame.
func DataLen(pldT int) int { return TagLen + DataHdrLen + pldT }

// AckLen returns the total wire length of an A frame.
func AckLen(pldA int) int { return TagLen + AckHdrLen + pldA }

// Buffer is the single reused byte region. Exactly one phase owns it at a
// time; Reset zeroes it between phases per the buffer-purity invariant.
type Buffer struct {
	raw [MaxLen]byte
}

// Reset zeroes the entire buffer.
func (b *Buffer) Reset() {
	for i := range b.raw {
		b.raw[i] = 0
	}
}

// Bytes returns the first n bytes of the underlying storage.
func (b *Buffer) Bytes(n int) []byte { return b.raw[:n] }

// EncodeSync writes an S frame: type, src, epoch, then payload (left
// zero-filled; caller copies payload bytes in separately).
func (b *Buffer) EncodeSync(src uint16, epoch uint16) {
	b.raw[0] = byte(KindSync)
	binary.LittleEndian.PutUint16(b.raw[1:3], src)
	binary.LittleEndian.PutUint16(b.raw[3:5], epoch)
}

// DecodeSync reads the S header. ok is false if the tag does not match.
func (b *Buffer) DecodeSync() (src uint16, epoch uint16, ok bool) {
	if Kind(b.raw[0]) != KindSync {
		return 0, 0, false
	}
	src = binary.LittleEndian.Uint16(b.raw[1:3])
	epoch = binary.LittleEndian.Uint16(b.raw[3:5])
	return src, epoch, true
}

// EncodeData writes the T frame tag. T carries no header fields of its own.
func (b *Buffer) EncodeData() {
	b.raw[0] = byte(KindData)
}

// DecodeData reports whether the tag matches a T frame.
func (b *Buffer) DecodeData() (ok bool) {
	return Kind(b.raw[0]) == KindData
}

// EncodeAck writes an A frame header.
func (b *Buffer) EncodeAck(epoch uint16, nTA uint16, cmd uint8) {
	b.raw[0] = byte(KindAck)
	binary.LittleEndian.PutUint16(b.raw[1:3], epoch)
	b.raw[3] = byte(nTA)
	b.raw[4] = cmd
}

// DecodeAck reads the A header. ok is false on a tag or command mismatch;
// CRYSTAL only ever emits CmdAwake/CmdSleep, any other value is rejected.
func (b *Buffer) DecodeAck() (epoch uint16, nTA uint16, cmd uint8, ok bool) {
	if Kind(b.raw[0]) != KindAck {
		return 0, 0, 0, false
	}
	epoch = binary.LittleEndian.Uint16(b.raw[1:3])
	nTA = uint16(b.raw[3])
	cmd = b.raw[4]
	if cmd != CmdAwake && cmd != CmdSleep {
		return 0, 0, 0, false
	}
	return epoch, nTA, cmd, true
}

// Payload returns the application payload region for a frame of the given
// kind, assuming the full length recv/rxLen bytes were received.
func (b *Buffer) Payload(kind Kind, rxLen int) []byte {
	var hdr int
	switch kind {
	case KindSync:
		hdr = TagLen + SyncHdrLen
	case KindData:
		hdr = TagLen + DataHdrLen
	case KindAck:
		hdr = TagLen + AckHdrLen
	}
	if rxLen <= hdr {
		return nil
	}
	return b.raw[hdr:rxLen]
}

// SetPayload copies application payload bytes starting right after the
// header for the given kind.
func (b *Buffer) SetPayload(kind Kind, payload []byte) {
	var hdr int
	switch kind {
	case KindSync:
		hdr = TagLen + SyncHdrLen
	case KindData:
		hdr = TagLen + DataHdrLen
	case KindAck:
		hdr = TagLen + AckHdrLen
	}
	copy(b.raw[hdr:], payload)
}
