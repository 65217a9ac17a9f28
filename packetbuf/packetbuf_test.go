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

package packetbuf

import "testing"

func TestSyncRoundTrip(t *testing.T) {
	var b Buffer
	b.EncodeSync(42, 7)
	b.SetPayload(KindSync, []byte{1, 2, 3})

	src, epoch, ok := b.DecodeSync()
	if !ok {
		t.Fatal("DecodeSync: ok = false")
	}
	if src != 42 || epoch != 7 {
		t.Fatalf("DecodeSync = (%d, %d), want (42, 7)", src, epoch)
	}
	payload := b.Payload(KindSync, SyncLen(3))
	if string(payload) != "\x01\x02\x03" {
		t.Fatalf("payload = %v, want [1 2 3]", payload)
	}
}

func TestDataRoundTrip(t *testing.T) {
	var b Buffer
	b.EncodeData()
	if !b.DecodeData() {
		t.Fatal("DecodeData: ok = false")
	}
}

func TestAckRoundTrip(t *testing.T) {
	var b Buffer
	b.EncodeAck(99, 5, CmdSleep)

	epoch, nTA, cmd, ok := b.DecodeAck()
	if !ok {
		t.Fatal("DecodeAck: ok = false")
	}
	if epoch != 99 || nTA != 5 || cmd != CmdSleep {
		t.Fatalf("DecodeAck = (%d, %d, %x), want (99, 5, %x)", epoch, nTA, cmd, CmdSleep)
	}
}

func TestDecodeRejectsWrongTag(t *testing.T) {
	var b Buffer
	b.EncodeData()
	if _, _, ok := b.DecodeSync(); ok {
		t.Fatal("DecodeSync accepted a T-tagged buffer")
	}
	if _, _, _, ok := b.DecodeAck(); ok {
		t.Fatal("DecodeAck accepted a T-tagged buffer")
	}
}

func TestDecodeAckRejectsUnknownCommand(t *testing.T) {
	var b Buffer
	b.EncodeAck(1, 0, 0x99)
	if _, _, _, ok := b.DecodeAck(); ok {
		t.Fatal("DecodeAck accepted an unknown command byte")
	}
}

func TestResetZeroesBuffer(t *testing.T) {
	var b Buffer
	b.EncodeSync(1, 1)
	b.SetPayload(KindSync, []byte{0xFF, 0xFF})
	b.Reset()
	for i, v := range b.Bytes(MaxLen) {
		if v != 0 {
			t.Fatalf("byte %d = %x after Reset, want 0", i, v)
		}
	}
}
