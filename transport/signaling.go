// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/coset/lib/clock"
	"github.com/bureau-foundation/coset/lib/config"
)

// SignalingLeg carries JSON control envelopes over a Socket and keeps
// the socket alive with transport-level pings. It publishes what it
// receives on the connection's bus and transmits whatever the bus asks
// it to send, so nothing above it touches the socket.
type SignalingLeg struct {
	socket    Socket
	bus       *bus
	logger    *slog.Logger
	heartbeat *heartbeat

	mu        sync.Mutex
	connected bool
	closed    bool
}

var _ SocketHandler = (*SignalingLeg)(nil)

func newSignalingLeg(socket Socket, events *bus, clk clock.Clock, cfg config.SignalingConfig, logger *slog.Logger) *SignalingLeg {
	leg := &SignalingLeg{
		socket: socket,
		bus:    events,
		logger: logger,
	}
	leg.heartbeat = newHeartbeat(clk, cfg.Heartbeat, leg.ping, leg.expire)
	subscribe(events, leg.send)
	return leg
}

// start begins reading the socket and arms the heartbeat.
func (l *SignalingLeg) start() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.connected = true
	l.mu.Unlock()

	l.socket.Start(l)
	l.heartbeat.start()
}

// Connected reports whether the socket is up and its heartbeat has not
// expired.
func (l *SignalingLeg) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// HandleText parses one frame and publishes it. A malformed frame is
// reported and otherwise ignored.
func (l *SignalingLeg) HandleText(data []byte) {
	message, err := ParseSignal(data)
	if err != nil {
		l.logger.Warn("discarding signaling frame", "error", err)
		l.bus.publish(signalFailed{err: err})
		return
	}
	l.bus.publish(signalReceived{message: message})
}

// HandlePong counts as proof of life.
func (l *SignalingLeg) HandlePong() {
	l.heartbeat.acknowledge()
}

// HandleClose marks the leg closed and tells the bus.
func (l *SignalingLeg) HandleClose(code int, reason string) {
	l.mu.Lock()
	l.connected = false
	l.closed = true
	l.mu.Unlock()

	l.heartbeat.stop()
	l.logger.Debug("signaling socket closed", "code", code, "reason", reason)
	event := signalClosed{code: code, reason: reason}
	if code == closeAbnormal && reason != "" {
		event.err = fmt.Errorf("%w: %s", ErrSocketFailed, reason)
	}
	l.bus.publish(event)
}

// HandleError republishes a socket error.
func (l *SignalingLeg) HandleError(err error) {
	l.bus.publish(signalFailed{err: fmt.Errorf("signaling socket: %w", err)})
}

func (l *SignalingLeg) send(event signalSend) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		l.logger.Debug("dropping signaling message on closed socket", "type", event.message.Type)
		return
	}

	encoded, err := json.Marshal(event.message)
	if err != nil {
		l.bus.publish(signalFailed{err: fmt.Errorf("encoding %s: %w", event.message.Type, err)})
		return
	}
	if err := l.socket.WriteText(encoded); err != nil {
		l.bus.publish(signalFailed{err: fmt.Errorf("writing %s: %w", event.message.Type, err)})
	}
}

func (l *SignalingLeg) ping() {
	if err := l.socket.Ping(); err != nil {
		// The timeout will fire if the socket is really gone.
		l.logger.Debug("signaling ping failed", "error", err)
	}
}

func (l *SignalingLeg) expire() {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()

	l.logger.Warn("signaling heartbeat expired")
	l.bus.publish(signalFailed{err: fmt.Errorf("signaling leg: %w", ErrPingTimeout)})
	l.Close()
}

// Close terminates the socket. Idempotent.
func (l *SignalingLeg) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.connected = false
	l.mu.Unlock()

	l.heartbeat.stop()
	return l.socket.Close()
}
