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

// Package logsink is the pluggable durable half of the epoch-log pipeline:
// one idempotent row per completed epoch, keyed by (node, epoch) the same
// way the rate-limiter's persistence layer keys commits by (key, commit
// id).
package logsink

import "fmt"

// EpochSummary is the unit written to a Sink.
type EpochSummary struct {
	NodeID uint16
	Epoch  uint16
	NTA    int
	Hops   int
}

// Sink durably records one EpochSummary. CommitEpoch may be called more
// than once for the same (NodeID, Epoch): RedisSink and MockSink keep only
// the first call's row, while LoggingSink keeps no state and prints every
// call.
type Sink interface {
	CommitEpoch(s EpochSummary) error
}

// MockSink keeps commits in memory; used by tests and as the harness
// default.
type MockSink struct {
	commits []EpochSummary
}

// NewMockSink constructs an empty MockSink.
func NewMockSink() *MockSink { return &MockSink{} }

func (m *MockSink) CommitEpoch(s EpochSummary) error {
	for _, c := range m.commits {
		if c.NodeID == s.NodeID && c.Epoch == s.Epoch {
			return nil
		}
	}
	m.commits = append(m.commits, s)
	return nil
}

// Commits returns everything recorded so far, for test assertions.
func (m *MockSink) Commits() []EpochSummary { return append([]EpochSummary(nil), m.commits...) }

// LoggingSink prints instead of persisting, mirroring the teacher's
// LoggingRedisEvaler fallback used when no real backend address is
// configured.
type LoggingSink struct{}

func (LoggingSink) CommitEpoch(s EpochSummary) error {
	fmt.Printf("logsink (no backend configured): node=%d epoch=%d n_ta=%d hops=%d\n", s.NodeID, s.Epoch, s.NTA, s.Hops)
	return nil
}
