// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, without the
// clock's lock held, so a callback may schedule or stop other timers.
// A callback must not call Advance.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	sequence uint64
	pending  []*pendingTimer
	changed  *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	// sequence orders timers sharing a deadline by creation.
	sequence uint64
	callback func()
	channel  chan time.Time
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a channel timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.scheduleLocked(&pendingTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f to run during the Advance that crosses
// now+d. A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &pendingTimer{deadline: c.now.Add(d), callback: f}
	c.scheduleLocked(timer)
	return &Timer{stop: func() bool { return c.remove(timer) }}
}

func (c *FakeClock) scheduleLocked(timer *pendingTimer) {
	c.sequence++
	timer.sequence = c.sequence
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) remove(timer *pendingTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index, candidate := range c.pending {
		if candidate == timer {
			c.pending = append(c.pending[:index], c.pending[index+1:]...)
			c.changed.Broadcast()
			return true
		}
	}
	return false
}

// Advance moves time forward by d and fires every timer whose deadline
// is reached, earliest first. Timers scheduled by a callback fire in
// the same Advance when their deadline also falls inside it.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		timer := c.popExpired(target)
		if timer == nil {
			return
		}
		if timer.callback != nil {
			timer.callback()
			continue
		}
		select {
		case timer.channel <- target:
		default:
		}
	}
}

// popExpired removes and returns the earliest timer due at target, or
// nil when none is due.
func (c *FakeClock) popExpired(target time.Time) *pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.pending, func(i, j int) bool {
		left, right := c.pending[i], c.pending[j]
		if !left.deadline.Equal(right.deadline) {
			return left.deadline.Before(right.deadline)
		}
		return left.sequence < right.sequence
	})
	if len(c.pending) == 0 || c.pending[0].deadline.After(target) {
		return nil
	}
	timer := c.pending[0]
	c.pending = c.pending[1:]
	c.changed.Broadcast()
	return timer
}

// Pending returns the number of timers not yet fired or stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitForTimers blocks until at least n timers are pending. Tests use
// it to let a goroutine arm its timer before advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}
