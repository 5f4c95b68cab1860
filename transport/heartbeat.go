// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"
	"time"

	"github.com/bureau-foundation/coset/lib/clock"
	"github.com/bureau-foundation/coset/lib/config"
)

// heartbeat is one leg's liveness timer pair. After start, a ping
// timer runs for the ping interval; when it fires the ping is sent and
// a timeout timer replaces it. acknowledge (a pong) swaps the timeout
// back for a fresh ping timer. If the timeout fires, expire runs once
// and the heartbeat stops for good.
//
// At most one of the two timers is armed at a time. Every arm bumps
// the generation, so a timer that fires after being superseded (the
// real clock cannot always stop a callback already in flight) does
// nothing.
type heartbeat struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	ping     func()
	expire   func()

	mu         sync.Mutex
	active     bool
	finished   bool
	generation uint64
	timer      *clock.Timer
}

func newHeartbeat(clk clock.Clock, timing config.HeartbeatConfig, ping, expire func()) *heartbeat {
	defaults := config.DefaultHeartbeat()
	if timing.PingInterval <= 0 {
		timing.PingInterval = defaults.PingInterval
	}
	if timing.PingTimeout <= 0 {
		timing.PingTimeout = defaults.PingTimeout
	}
	return &heartbeat{
		clock:    clk,
		interval: timing.PingInterval,
		timeout:  timing.PingTimeout,
		ping:     ping,
		expire:   expire,
	}
}

// start arms the first ping timer. It does nothing after stop or
// expiry, or when already running.
func (h *heartbeat) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active || h.finished {
		return
	}
	h.active = true
	h.armLocked(h.interval, h.firePing)
}

// acknowledge records a pong.
func (h *heartbeat) acknowledge() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return
	}
	h.armLocked(h.interval, h.firePing)
}

// stop cancels both timers permanently.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	h.finished = true
	h.generation++
	h.timer.Stop()
	h.timer = nil
}

// armLocked replaces whichever timer is armed. The callback receives
// the generation it was armed under.
func (h *heartbeat) armLocked(after time.Duration, fire func(uint64)) {
	h.timer.Stop()
	h.generation++
	generation := h.generation
	h.timer = h.clock.AfterFunc(after, func() { fire(generation) })
}

func (h *heartbeat) firePing(generation uint64) {
	h.mu.Lock()
	if !h.active || generation != h.generation {
		h.mu.Unlock()
		return
	}
	h.armLocked(h.timeout, h.fireTimeout)
	h.mu.Unlock()

	h.ping()
}

func (h *heartbeat) fireTimeout(generation uint64) {
	h.mu.Lock()
	if !h.active || generation != h.generation {
		h.mu.Unlock()
		return
	}
	h.active = false
	h.finished = true
	h.timer = nil
	h.mu.Unlock()

	h.expire()
}
