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

// Package main runs Crystal against the in-process flood simulator: one
// sink and N non-sink nodes on a real clock, so the protocol's end-to-end
// behavior can be observed without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	crystal "github.com/d3s-trento/contiki-uwb-sub001"
	"github.com/d3s-trento/contiki-uwb-sub001/epochlog"
	"github.com/d3s-trento/contiki-uwb-sub001/internal/logsink"
	"github.com/d3s-trento/contiki-uwb-sub001/internal/simflood"
	"github.com/d3s-trento/contiki-uwb-sub001/platform"
)

func main() {
	nonSinks := flag.Int("non_sinks", 4, "Number of simulated non-sink nodes")
	period := flag.Duration("period", 1*time.Second, "Epoch length")
	wS := flag.Duration("w_s", 5*time.Millisecond, "S slot width")
	wT := flag.Duration("w_t", 3*time.Millisecond, "T slot width")
	wA := flag.Duration("w_a", 3*time.Millisecond, "A slot width")
	pldsT := flag.Int("plds_t", 4, "T slot application payload size")
	r := flag.Int("r", 3, "Consecutive empty T slots before sink terminates the epoch")
	y := flag.Int("y", 3, "Consecutive empty TA pairs before a non-transmitter exits")
	z := flag.Int("z", 3, "Consecutive un-acked TAs before a transmitter exits")
	x := flag.Int("x", 0, "Consecutive T reception errors before sink terminates")
	xa := flag.Int("xa", 0, "A reception errors tolerated before counting as no-ack")
	scanDuration := flag.Int("scan_duration", 10, "Scan budget, in multiples of period")
	nFullEpochs := flag.Int("n_full_epochs", 2, "Epochs before termination shortcuts may fire")
	domains := flag.Int("domains", 1, "Number of independent simulated collision domains")
	runFor := flag.Duration("run_for", 0, "If > 0, stop the simulation automatically after this long")

	logsinkAdapter := flag.String("logsink", "mock", "Epoch-log durable sink: mock|logging|redis")
	redisAddr := flag.String("redis_addr", "", "Redis address for -logsink=redis (empty uses a logging client)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			fmt.Printf("crystal-sim: metrics listening on %s\n", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	sink, err := logsink.Build(ctx, *logsinkAdapter, logsink.Options{RedisAddr: *redisAddr})
	if err != nil {
		log.Fatalf("building logsink: %v", err)
	}

	net := simflood.NewNetwork(*domains)

	cfg := crystal.Config{
		Period:       *period,
		WS:           *wS,
		WT:           *wT,
		WA:           *wA,
		NTxS:         3,
		NTxT:         3,
		NTxA:         3,
		PldsT:        *pldsT,
		R:            *r,
		Y:            *y,
		Z:            *z,
		X:            *x,
		Xa:           *xa,
		ScanDuration: *scanDuration,
		NFullEpochs:  *nFullEpochs,
		SyncAcks:     true,
	}

	plat := platform.Local{OnReset: func(reason string) {
		fmt.Printf("crystal-sim: reset requested: %s\n", reason)
	}}

	sinkCfg := cfg
	sinkCfg.IsSink = true
	sinkLogger := epochlog.New(epochlog.Options{NodeID: 1, IsSink: true, Sink: sink})
	sinkDriver := crystal.New(1, sinkCfg, &demoCallbacks{name: "sink-1", pldsT: *pldsT}, net.NewMedium(1), plat, sinkLogger)
	if err := sinkDriver.Init(); err != nil {
		log.Fatalf("sink init: %v", err)
	}
	if !sinkDriver.Start(ctx) {
		log.Fatalf("sink failed to start: invalid configuration")
	}

	drivers := []*crystal.Driver{sinkDriver}
	loggers := []*epochlog.Logger{sinkLogger}

	for i := 0; i < *nonSinks; i++ {
		id := crystal.NodeID(2 + i)
		nsCfg := cfg
		nsCfg.IsSink = false
		logger := epochlog.New(epochlog.Options{NodeID: id, IsSink: false, Sink: sink})
		d := crystal.New(id, nsCfg, &demoCallbacks{name: fmt.Sprintf("node-%d", id), pldsT: *pldsT}, net.NewMedium(id), plat, logger)
		if err := d.Init(); err != nil {
			log.Fatalf("node %d init: %v", id, err)
		}
		if !d.Start(ctx) {
			log.Fatalf("node %d failed to start: invalid configuration", id)
		}
		drivers = append(drivers, d)
		loggers = append(loggers, logger)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if *runFor > 0 {
		timeout = time.After(*runFor)
	}

	select {
	case <-stop:
		fmt.Println("\ncrystal-sim: shutting down...")
	case <-timeout:
		fmt.Println("crystal-sim: run_for elapsed, shutting down...")
	}

	for _, d := range drivers {
		d.Stop()
	}
	cancel()

	for _, l := range loggers {
		l.PrintAndReset()
	}
	fmt.Println("crystal-sim: stopped.")
}

// demoCallbacks is a minimal application: it always has a reading to send
// and ignores everything it receives, just enough to exercise every
// callback.
type demoCallbacks struct {
	name  string
	pldsT int
	seq   uint32
}

func (c *demoCallbacks) PreS() []byte { return nil }
func (c *demoCallbacks) PostS(received bool, payload []byte) {}

func (c *demoCallbacks) PreT() []byte {
	c.seq++
	buf := make([]byte, c.pldsT)
	for i := 0; i < len(buf) && i < 4; i++ {
		buf[i] = byte(c.seq >> (8 * uint(i)))
	}
	return buf
}

func (c *demoCallbacks) BetweenTA(received bool, payload []byte) []byte { return nil }
func (c *demoCallbacks) PostA(received bool, payload []byte)           {}
func (c *demoCallbacks) EpochEnd()                                     {}
func (c *demoCallbacks) PreEpoch()                                     {}
func (c *demoCallbacks) StartDone(success bool) {
	fmt.Printf("crystal-sim: %s start done, success=%v\n", c.name, success)
}
