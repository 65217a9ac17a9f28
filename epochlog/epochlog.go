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

// Package epochlog assembles per-epoch diagnostic records outside the
// time-critical slot path, exports them as Prometheus series, and
// optionally ships a durable summary row per epoch through a logsink.Sink.
//
// Nothing in this package is ever called from inside a slot wait; the
// driver only ever calls it between phases, the same boundary the original
// firmware draws between interrupt-context work and the application's
// best-effort print_epoch_logs call.
package epochlog

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d3s-trento/contiki-uwb-sub001/internal/logsink"
)

var (
	epochsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crystal_epochs_total",
		Help: "Epochs completed by this node.",
	}, []string{"node", "role"})

	taPairsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crystal_ta_pairs_total",
		Help: "TA pairs executed by this node.",
	}, []string{"node", "role"})

	syncMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crystal_sync_misses_total",
		Help: "Epochs in which the non-sink node failed to capture a valid S reference.",
	}, []string{"node"})

	ackSkewErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crystal_ack_skew_errors_total",
		Help: "ACK-derived reference candidates rejected as outliers.",
	}, []string{"node"})

	resetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crystal_resets_total",
		Help: "Platform reset requests raised due to prolonged sync/ack loss.",
	}, []string{"node"})

	hopsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crystal_hops",
		Help: "Most recently observed relay hop count to the sink.",
	}, []string{"node"})

	skewGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crystal_period_skew_nanoseconds",
		Help: "Most recently estimated per-period clock skew, in nanoseconds.",
	}, []string{"node"})

	epochDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crystal_epoch_active_duration_seconds",
		Help:    "Wall-clock duration of the active (non-sleep) part of an epoch.",
		Buckets: prometheus.DefBuckets,
	}, []string{"node", "role"})
)

func init() {
	prometheus.MustRegister(epochsTotal, taPairsTotal, syncMissesTotal, ackSkewErrorsTotal,
		resetsTotal, hopsGauge, skewGauge, epochDuration)
}

// TARecord is one per-TA diagnostic entry, written between slots: the TA
// index, whether T was correct or had a reception error, and whether A
// was acked.
type TARecord struct {
	NTA           int
	TCorrect      bool
	TReceptionErr bool
	AAcked        bool
}

// EpochRecord is the exported, immutable snapshot of one completed epoch.
type EpochRecord struct {
	NodeID       uint16
	Epoch        uint16
	IsSink       bool
	NTA          int
	Hops         int
	Skew         time.Duration
	SyncMissed   int
	NNoAckEpochs int
	AckSkewErr   int
	StartedAt    time.Time
	EndedAt      time.Time
	TAs          []TARecord
}

// Options configures a Logger.
type Options struct {
	NodeID uint16
	IsSink bool
	// Sink, when non-nil, receives one idempotent durable row per
	// completed epoch.
	Sink logsink.Sink
}

// Logger accumulates diagnostic records for one node.
type Logger struct {
	opts     Options
	nodeStr  string
	roleStr  string

	mu      sync.Mutex
	cur     EpochRecord
	pending []EpochRecord

	lastAckSkewErr int // cumulative count seen at the previous EndEpoch
}

// New constructs a Logger. opts.Sink may be nil.
func New(opts Options) *Logger {
	role := "nonsink"
	if opts.IsSink {
		role = "sink"
	}
	return &Logger{
		opts:    opts,
		nodeStr: strconv.FormatUint(uint64(opts.NodeID), 10),
		roleStr: role,
	}
}

// RecordS starts a fresh record for the epoch whose S slot just ran and
// stamps its start time; received and nTx are not stored.
func (l *Logger) RecordS(epoch uint16, received bool, nTx int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur = EpochRecord{NodeID: l.opts.NodeID, Epoch: epoch, IsSink: l.opts.IsSink, StartedAt: time.Now()}
}

// RecordT notes the outcome of one T slot.
func (l *Logger) RecordT(epoch uint16, nTA int, correct bool, receptionErr bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur.TAs = append(l.cur.TAs, TARecord{NTA: nTA, TCorrect: correct, TReceptionErr: receptionErr})
}

// RecordA notes the outcome of one A slot, mirrored against the T that
// immediately preceded it.
func (l *Logger) RecordA(epoch uint16, nTA int, acked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.cur.TAs); n > 0 && l.cur.TAs[n-1].NTA == nTA {
		l.cur.TAs[n-1].AAcked = acked
	}
}

// EndEpoch finalizes the current epoch's record with cross-epoch
// synchronization state, updates Prometheus series, ships a durable row to
// the sink if configured, and buffers the record for the next
// PrintAndReset.
func (l *Logger) EndEpoch(epoch uint16, hops int, skew time.Duration, syncMissed, nNoAckEpochs, ackSkewErr int) {
	l.mu.Lock()
	l.cur.Epoch = epoch
	l.cur.NTA = len(l.cur.TAs)
	l.cur.Hops = hops
	l.cur.Skew = skew
	l.cur.SyncMissed = syncMissed
	l.cur.NNoAckEpochs = nNoAckEpochs
	l.cur.AckSkewErr = ackSkewErr
	l.cur.EndedAt = time.Now()
	rec := l.cur
	l.pending = append(l.pending, rec)
	newAckSkewErr := 0
	if ackSkewErr > l.lastAckSkewErr {
		newAckSkewErr = ackSkewErr - l.lastAckSkewErr
	}
	l.lastAckSkewErr = ackSkewErr
	l.mu.Unlock()

	epochsTotal.WithLabelValues(l.nodeStr, l.roleStr).Inc()
	taPairsTotal.WithLabelValues(l.nodeStr, l.roleStr).Add(float64(rec.NTA))
	hopsGauge.WithLabelValues(l.nodeStr).Set(float64(hops))
	skewGauge.WithLabelValues(l.nodeStr).Set(float64(skew.Nanoseconds()))
	if !rec.IsSink {
		if syncMissed > 0 {
			syncMissesTotal.WithLabelValues(l.nodeStr).Inc()
		}
		if newAckSkewErr > 0 {
			ackSkewErrorsTotal.WithLabelValues(l.nodeStr).Add(float64(newAckSkewErr))
		}
	}
	if !rec.EndedAt.IsZero() && !rec.StartedAt.IsZero() {
		epochDuration.WithLabelValues(l.nodeStr, l.roleStr).Observe(rec.EndedAt.Sub(rec.StartedAt).Seconds())
	}

	if l.opts.Sink != nil {
		if err := l.opts.Sink.CommitEpoch(logsink.EpochSummary{
			NodeID: rec.NodeID,
			Epoch:  rec.Epoch,
			NTA:    rec.NTA,
			Hops:   rec.Hops,
		}); err != nil {
			fmt.Printf("ERROR: epochlog: failed to persist epoch %d for node %d: %v\n", rec.Epoch, rec.NodeID, err)
		}
	}
}

// RecordReset increments the reset counter; called when the
// synchronization tracker's reset rule fires.
func (l *Logger) RecordReset() {
	resetsTotal.WithLabelValues(l.nodeStr).Inc()
}

// PrintAndReset emits the human-readable summary accumulated since the
// previous call and clears the buffer.
func (l *Logger) PrintAndReset() {
	l.mu.Lock()
	recs := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, r := range recs {
		fmt.Printf("crystal: node %d epoch %d role=%s n_ta=%d hops=%d skew=%s sync_missed=%d n_noack_epochs=%d ack_skew_err=%d\n",
			r.NodeID, r.Epoch, map[bool]string{true: "sink", false: "nonsink"}[r.IsSink],
			r.NTA, r.Hops, r.Skew, r.SyncMissed, r.NNoAckEpochs, r.AckSkewErr)
	}
}
