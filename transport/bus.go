// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// busEvent is one of the closed set of notifications exchanged between
// the two legs of a connection and its façade. The legs never hold a
// reference to each other; everything crosses the bus.
type busEvent interface {
	busEvent()
}

// signalReceived is a parsed inbound signaling envelope.
type signalReceived struct{ message SignalMessage }

// signalSend asks the signaling leg to transmit an envelope.
type signalSend struct{ message SignalMessage }

// signalFailed is a non-fatal signaling problem: a malformed frame, a
// write failure or a socket error. A ping timeout is also reported
// this way, just before the socket is closed.
type signalFailed struct{ err error }

// signalClosed reports that the socket is gone. err is set when it
// ended on a read failure.
type signalClosed struct {
	code   int
	reason string
	err    error
}

// dataOpened reports the data channel's first open. Published once.
type dataOpened struct{}

// dataFailed is a fatal data-leg error.
type dataFailed struct{ err error }

// dataClosed reports that the data leg shut down on its own: the
// channel closed or the peer asked to close.
type dataClosed struct{}

func (signalReceived) busEvent() {}
func (signalSend) busEvent()     {}
func (signalFailed) busEvent()   {}
func (signalClosed) busEvent()   {}
func (dataOpened) busEvent()     {}
func (dataFailed) busEvent()     {}
func (dataClosed) busEvent()     {}

// bus delivers events synchronously, in subscription order, on the
// publishing goroutine. Subscribers must not hold locks that another
// subscriber's handler may need.
type bus struct {
	mu          sync.Mutex
	subscribers []func(busEvent)
}

func (b *bus) subscribeAll(handler func(busEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, handler)
}

func (b *bus) publish(event busEvent) {
	b.mu.Lock()
	subscribers := make([]func(busEvent), len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.Unlock()

	for _, subscriber := range subscribers {
		subscriber(event)
	}
}

// subscribe registers handler for events of type E only.
func subscribe[E busEvent](b *bus, handler func(E)) {
	b.subscribeAll(func(event busEvent) {
		if typed, ok := event.(E); ok {
			handler(typed)
		}
	})
}
