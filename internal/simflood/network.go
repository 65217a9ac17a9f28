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

// Package simflood is a software stand-in for the flood/pulse
// collaborator Crystal consumes (flood.Medium / flood.Pulse). It models a
// one-to-many concurrent-transmission pulse as an in-process rendezvous:
// whichever node starts a pulse as initiator within a domain publishes its
// frame; every other node in that domain listening at the same time
// observes it.
//
// Nodes are partitioned into independent collision domains by rendezvous
// hashing over node ID, so a single process simulating many nodes does not
// collapse every node onto one shared medium.
package simflood

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"

	"github.com/d3s-trento/contiki-uwb-sub001/flood"
)

// Network is the shared medium for a simulated deployment. Construct one
// Network, register each simulated node's Medium with NewMedium, and run
// every driver against its own Medium.
type Network struct {
	domains []*domain
	ring    *rendezvous.Rendezvous
}

type domain struct {
	mu  sync.Mutex
	gen uint64
	tx  *transmission
}

type transmission struct {
	gen         uint64
	initiator   flood.NodeID
	payload     []byte
	tRef        time.Time
	relayHops   int
	reception   bool // simulated radio-error flag for this pulse
	highNoise   bool
}

// NewNetwork builds a Network with the given number of independent
// collision domains. domains must be >= 1.
func NewNetwork(domains int) *Network {
	if domains < 1 {
		domains = 1
	}
	names := make([]string, domains)
	ds := make([]*domain, domains)
	for i := range ds {
		names[i] = strconv.Itoa(i)
		ds[i] = &domain{}
	}
	return &Network{
		domains: ds,
		ring:    rendezvous.New(names, xxhash.Sum64String),
	}
}

func (n *Network) domainFor(id flood.NodeID) *domain {
	name := n.ring.Lookup(strconv.FormatUint(uint64(id), 10))
	idx, err := strconv.Atoi(name)
	if err != nil {
		return n.domains[0]
	}
	return n.domains[idx]
}

// NewMedium returns a flood.Medium bound to nodeID.
func (n *Network) NewMedium(nodeID flood.NodeID) flood.Medium {
	return &medium{node: nodeID, dom: n.domainFor(nodeID)}
}

type medium struct {
	node flood.NodeID
	dom  *domain
}

func (m *medium) NewPulse() flood.Pulse {
	return &pulse{node: m.node, dom: m.dom}
}

// pollInterval bounds how often a listening pulse checks for a fresh
// transmission in its domain. Small relative to any realistic slot width.
const pollInterval = 50 * time.Microsecond

type pulse struct {
	node flood.NodeID
	dom  *domain

	initiator flood.NodeID
	recvBuf   []byte
	startGen  uint64
	startedAt time.Time

	stopCh chan struct{}
	result flood.Result
	mu     sync.Mutex
}

func (p *pulse) Start(initiatorID flood.NodeID, buf []byte, nTx int, syncMode flood.SyncMode) {
	p.initiator = initiatorID
	p.recvBuf = buf
	p.startedAt = time.Now()
	p.stopCh = make(chan struct{})

	if initiatorID == p.node {
		p.dom.mu.Lock()
		p.dom.gen++
		tx := &transmission{
			gen:       p.dom.gen,
			initiator: initiatorID,
			payload:   append([]byte(nil), buf...),
			tRef:      p.startedAt,
		}
		p.dom.tx = tx
		p.dom.mu.Unlock()

		p.mu.Lock()
		p.result = flood.Result{
			NTx:         1,
			PayloadLen:  len(buf),
			TRefUpdated: syncMode == flood.WithSync,
			TRef:        tx.tRef,
			InitiatorID: initiatorID,
		}
		p.mu.Unlock()
		return
	}

	p.dom.mu.Lock()
	p.startGen = p.dom.gen
	p.dom.mu.Unlock()

	go p.listen(syncMode)
}

func (p *pulse) listen(syncMode flood.SyncMode) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.dom.mu.Lock()
			tx := p.dom.tx
			p.dom.mu.Unlock()
			if tx == nil || tx.gen <= p.startGen || tx.initiator == p.node {
				continue
			}
			if p.initiator != flood.UnknownInitiator && p.initiator != tx.initiator {
				continue
			}
			n := copy(p.recvBuf, tx.payload)
			p.mu.Lock()
			p.result = flood.Result{
				NRx:              1,
				PayloadLen:       n,
				TRefUpdated:      syncMode == flood.WithSync,
				TRef:             tx.tRef,
				InitiatorID:      tx.initiator,
				RelayCntFirstRx:  tx.relayHops,
				ReceptionError:   tx.reception,
				HighNoiseChannel: tx.highNoise,
			}
			p.mu.Unlock()
			return
		}
	}
}

func (p *pulse) Stop() flood.Result {
	if p.stopCh != nil {
		select {
		case <-p.stopCh:
		default:
			close(p.stopCh)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// String aids debugging; not used by the protocol.
func (t *transmission) String() string {
	return fmt.Sprintf("tx{gen=%d initiator=%d len=%d}", t.gen, t.initiator, len(t.payload))
}
