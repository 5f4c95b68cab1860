// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/coset/lib/clock"
	"github.com/bureau-foundation/coset/lib/config"
	"github.com/bureau-foundation/coset/lib/wire"
)

// State is the lifecycle of a Connection.
type State int

const (
	// Handshaking: the signaling socket is up, the data channel is not.
	Handshaking State = iota
	// Established: the data channel has opened.
	Established
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Established:
		return "established"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Events receives a connection's notifications. Any field may be nil.
// Callbacks run on the goroutine that caused them and must not block
// for long.
type Events struct {
	// OnEstablished runs once, when the data channel opens, before any
	// message is dispatched.
	OnEstablished func(*Connection)

	// OnError runs for every error the connection reports while it is
	// not closed. Fatal errors are followed by OnClose.
	OnError func(*Connection, error)

	// OnClose runs once. The error is nil for an orderly close.
	OnClose func(*Connection, error)
}

// Config configures NewConnection.
type Config struct {
	// Clock drives heartbeats and the handshake deadline. Nil means
	// the wall clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// NewPeer builds the connection's peer connection. Required.
	NewPeer PeerFactory

	Signaling config.SignalingConfig
	Data      config.DataConfig
	Events    Events
}

// Connection pairs a signaling socket with the data channel it
// negotiates. The two legs only talk through a private bus; the
// Connection listens to that bus, turns leg events into its own
// lifecycle and exposes the Data Leg's registries and send path.
//
// The first terminal event wins: an explicit Close, either socket or
// channel closing, a fatal data error, or a heartbeat expiry on either
// leg. Everything after that is dropped.
type Connection struct {
	id        string
	clock     clock.Clock
	logger    *slog.Logger
	events    Events
	bus       *bus
	signaling *SignalingLeg
	data      *DataLeg

	mu          sync.Mutex
	state       State
	started     bool
	startedAt   time.Time
	cause       error
	established chan struct{}
	done        chan struct{}
}

// NewConnection builds a connection over an accepted socket. It fails
// with ErrUnsupported when no peer connection can be created. The
// socket is not read until Start.
func NewConnection(id string, socket Socket, cfg Config) (*Connection, error) {
	if cfg.NewPeer == nil {
		return nil, fmt.Errorf("%w: no peer factory", ErrUnsupported)
	}
	peer, err := cfg.NewPeer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		id:          id,
		clock:       clk,
		logger:      logger,
		events:      cfg.Events,
		bus:         &bus{},
		established: make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.signaling = newSignalingLeg(socket, c.bus, clk, cfg.Signaling, logger.With("connection", id))
	c.data = newDataLeg(id, peer, c.bus, clk, cfg.Data, logger)

	subscribe(c.bus, func(dataOpened) { c.establish() })
	subscribe(c.bus, func(event dataFailed) {
		c.reportError(event.err)
		c.terminate(event.err)
	})
	subscribe(c.bus, func(dataClosed) { c.terminate(nil) })
	subscribe(c.bus, func(event signalClosed) {
		c.logger.Debug("signaling closed", "connection", c.id, "code", event.code)
		c.terminate(event.err)
	})
	subscribe(c.bus, func(event signalFailed) {
		c.reportError(event.err)
		if errors.Is(event.err, ErrPingTimeout) {
			c.terminate(event.err)
		}
	})

	recordConnectionOpened()
	return c, nil
}

// Start begins reading the socket and arms the handshake deadline.
// Register handlers and schemas before calling it. Later calls do
// nothing.
func (c *Connection) Start() {
	c.mu.Lock()
	if c.started || c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.startedAt = c.clock.Now()
	c.mu.Unlock()

	c.data.start()
	c.signaling.start()
}

// ID returns the identity assigned at construction.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Established is closed when the data channel opens. It stays open
// forever for a connection that closes during the handshake, so wait
// on Done as well.
func (c *Connection) Established() <-chan struct{} { return c.established }

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err returns the error that closed the connection, or nil.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Handle registers a handler for an application type. Handlers of one
// type run in registration order. Registering the same comparable
// handler value twice fails with ErrDuplicateHandler.
func (c *Connection) Handle(t TypeID, handler Handler) (HandlerID, error) {
	return c.data.handlers.register(t, handler, false)
}

// HandleFunc registers a function. Every call adds a new registration.
func (c *Connection) HandleFunc(t TypeID, handler func(Message)) (HandlerID, error) {
	if handler == nil {
		return 0, errors.New("transport: nil handler")
	}
	return c.Handle(t, HandlerFunc(handler))
}

// RemoveHandler drops the registration Handle returned.
func (c *Connection) RemoveHandler(t TypeID, id HandlerID) {
	c.data.handlers.unregister(t, id)
}

// RemoveHandlerValue drops the registration of a comparable handler
// value.
func (c *Connection) RemoveHandlerValue(t TypeID, handler Handler) {
	c.data.handlers.unregisterHandler(t, handler)
}

// RegisterSchema sets the payload layout of a type.
func (c *Connection) RegisterSchema(t TypeID, schema *wire.Schema) error {
	return c.data.schemas.register(t, schema)
}

// UnregisterSchema removes a type's layout.
func (c *Connection) UnregisterSchema(t TypeID) error {
	return c.data.schemas.unregister(t)
}

// Send transmits a message over the data channel, queueing it until
// the channel is open and drained. A transmission error closes the
// connection and is also returned.
func (c *Connection) Send(t TypeID, payload wire.Record) error {
	if c.State() == Closed {
		return ErrClosed
	}
	return c.data.Send(t, payload)
}

// Close tells the peer and shuts both legs down. Idempotent.
func (c *Connection) Close() error {
	if c.State() == Closed {
		return nil
	}
	if message, err := NewSignal(SignalClose, nil); err == nil {
		c.bus.publish(signalSend{message: message})
	}
	c.terminate(nil)
	return nil
}

func (c *Connection) establish() {
	c.mu.Lock()
	if c.state != Handshaking {
		c.mu.Unlock()
		return
	}
	c.state = Established
	elapsed := c.clock.Now().Sub(c.startedAt)
	close(c.established)
	c.mu.Unlock()

	recordEstablished(elapsed)
	c.logger.Info("connection established", "connection", c.id, "elapsed", elapsed)
	if c.events.OnEstablished != nil {
		c.events.OnEstablished(c)
	}
}

func (c *Connection) reportError(err error) {
	if c.State() == Closed {
		c.logger.Debug("dropping error after close", "connection", c.id, "error", err)
		return
	}
	recordError(err)
	c.logger.Warn("connection error", "connection", c.id, "error", err)
	if c.events.OnError != nil {
		c.events.OnError(c, err)
	}
}

func (c *Connection) terminate(cause error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	wasEstablished := c.state == Established
	c.state = Closed
	c.cause = cause
	close(c.done)
	c.mu.Unlock()

	c.data.Close()
	c.signaling.Close()

	outcome := "abandoned"
	switch {
	case cause != nil:
		outcome = "failed"
	case wasEstablished:
		outcome = "completed"
	}
	recordConnectionClosed(outcome)
	c.logger.Info("connection closed", "connection", c.id, "outcome", outcome, "error", cause)

	if c.events.OnClose != nil {
		c.events.OnClose(c, cause)
	}
}
