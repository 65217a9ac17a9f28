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
	"sync"
	"sync/atomic"
	"time"

	"github.com/d3s-trento/contiki-uwb-sub001/epochlog"
	"github.com/d3s-trento/contiki-uwb-sub001/flood"
	"github.com/d3s-trento/contiki-uwb-sub001/packetbuf"
	"github.com/d3s-trento/contiki-uwb-sub001/platform"
)

// Driver is one node's Crystal engine: one driver struct instantiated once
// by New, holding all configuration and epoch state. There are no
// mutable package-level globals; everything lives here and is passed by
// reference to the callback surface.
type Driver struct {
	nodeID    NodeID
	cfg       Config
	callbacks Callbacks
	medium    flood.Medium
	plat      platform.Platform
	logger    *epochlog.Logger

	mu       sync.RWMutex
	info     Info
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	buf packetbuf.Buffer
}

// New constructs a driver. logger may be nil; a nil logger disables the
// epoch-log pipeline entirely (it is never on the time-critical path).
func New(nodeID NodeID, cfg Config, callbacks Callbacks, medium flood.Medium, plat platform.Platform, logger *epochlog.Logger) *Driver {
	return &Driver{
		nodeID:    nodeID,
		cfg:       cfg,
		callbacks: callbacks,
		medium:    medium,
		plat:      plat,
		logger:    logger,
	}
}

// Init is the one-shot boot hook, called once before Start. It performs no
// work and always returns nil: the flood.Medium passed to New is used as
// is, with no initialization step.
func (d *Driver) Init() error {
	return nil
}

// Start validates the configuration, selects the role, and begins running
// the driver on its own goroutine. It returns false (without starting
// anything) if the configuration is invalid.
func (d *Driver) Start(ctx context.Context) bool {
	if err := d.cfg.Validate(); err != nil {
		return false
	}
	d.stopCh = make(chan struct{})
	d.done = make(chan struct{})
	d.running.Store(true)

	go func() {
		defer close(d.done)
		defer d.running.Store(false)
		if d.cfg.IsSink {
			d.runSink(ctx)
		} else {
			d.runNonSink(ctx)
		}
	}()
	return true
}

// Stop schedules cancellation: the running goroutine observes stopCh at
// its next suspension point and exits without re-arming further waits.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		if d.stopCh != nil {
			close(d.stopCh)
		}
	})
	if d.done != nil {
		<-d.done
	}
}

// GetConfig returns the current (immutable) configuration.
func (d *Driver) GetConfig() Config { return d.cfg }

// GetInfo returns the live status snapshot.
func (d *Driver) GetInfo() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// PrintEpochLogs emits the summary accumulated since the previous call.
func (d *Driver) PrintEpochLogs() {
	if d.logger != nil {
		d.logger.PrintAndReset()
	}
}

func (d *Driver) setInfo(i Info) {
	d.mu.Lock()
	d.info = i
	d.mu.Unlock()
}

func (d *Driver) stopRequested() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

// waitUntil suspends the calling goroutine until deadline, ctx cancellation,
// or a stop request, whichever comes first. This is the only place that
// touches the timer for in-epoch waits, matching the slot executor's
// design.
func (d *Driver) waitUntil(ctx context.Context, deadline time.Time) (stopped bool) {
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return d.stopRequested()
	case <-ctx.Done():
		return true
	case <-d.stopCh:
		return true
	}
}

// executeSlot is the slot executor (§4.4): wait to absolute start, start
// the flood, wait to absolute stop, stop the flood, return the harvested
// result.
func (d *Driver) executeSlot(ctx context.Context, start, stop time.Time, initiatorID flood.NodeID, buf []byte, nTx int, syncMode flood.SyncMode) (flood.Result, bool) {
	if stopped := d.waitUntil(ctx, start); stopped {
		return flood.Result{}, true
	}
	pulse := d.medium.NewPulse()
	pulse.Start(initiatorID, buf, nTx, syncMode)
	if stopped := d.waitUntil(ctx, stop); stopped {
		pulse.Stop()
		return flood.Result{}, true
	}
	return pulse.Stop(), false
}
