// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrAcceptDisabled is returned by Accept on a listener configured
// without an accept queue.
var ErrAcceptDisabled = errors.New("transport: accept queue disabled")

// ListenerConfig configures NewListener.
type ListenerConfig struct {
	// Connection is the template for every accepted connection. Its
	// Events run before the listener's own bookkeeping callbacks are
	// observed by Accept.
	Connection Config

	// Prepare runs after a connection is built and before its socket
	// is read. Register schemas and handlers here. An error closes the
	// connection.
	Prepare func(*Connection) error

	// AllowedOrigins lists the Origin header values accepted on
	// upgrade. "*" accepts any. Empty applies gorilla's same-host
	// check.
	AllowedOrigins []string

	// AcceptQueue is how many established connections may wait for
	// Accept. Zero disables Accept; connections are then reached only
	// through Events and Prepare.
	AcceptQueue int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Listener is an http.Handler that turns each WebSocket upgrade into a
// Connection and tracks it until it closes.
type Listener struct {
	config   ListenerConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	connections map[string]*Connection
	closed      bool

	established chan *Connection
	done        chan struct{}
}

// NewListener returns a listener ready to be mounted on a mux.
func NewListener(cfg ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Connection.Logger == nil {
		cfg.Connection.Logger = logger
	}

	listener := &Listener{
		config:      cfg,
		logger:      logger,
		connections: make(map[string]*Connection),
		done:        make(chan struct{}),
	}
	listener.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	if cfg.AcceptQueue > 0 {
		listener.established = make(chan *Connection, cfg.AcceptQueue)
	}
	return listener
}

// originChecker returns nil, gorilla's default, for an empty list.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the request and starts a connection on it.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if l.isClosed() {
		http.Error(w, "listener closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		l.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	socket := NewWebSocket(conn, l.logger)
	socket.SetReadLimit(l.config.Connection.Signaling.MaxMessageBytes)

	id, ok := l.reserveID()
	if !ok {
		socket.Close()
		return
	}

	cfg := l.config.Connection
	cfg.Events = l.wrapEvents(cfg.Events)
	connection, err := NewConnection(id, socket, cfg)
	if err != nil {
		l.release(id)
		l.logger.Error("creating connection failed", "remote", r.RemoteAddr, "error", err)
		socket.Close()
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		connection.Close()
		return
	}
	l.connections[id] = connection
	l.mu.Unlock()

	if l.config.Prepare != nil {
		if err := l.config.Prepare(connection); err != nil {
			l.logger.Error("preparing connection failed", "connection", id, "error", err)
			connection.Close()
			return
		}
	}

	l.logger.Debug("connection accepted", "connection", id, "remote", r.RemoteAddr)
	connection.Start()
}

// reserveID picks an identity no live connection holds. The slot is
// held by a nil entry until the connection is registered.
func (l *Listener) reserveID() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return "", false
	}
	for {
		id := uuid.NewString()
		if _, taken := l.connections[id]; !taken {
			l.connections[id] = nil
			return id, true
		}
	}
}

func (l *Listener) release(id string) {
	l.mu.Lock()
	delete(l.connections, id)
	l.mu.Unlock()
}

func (l *Listener) wrapEvents(template Events) Events {
	return Events{
		OnEstablished: func(c *Connection) {
			if template.OnEstablished != nil {
				template.OnEstablished(c)
			}
			l.enqueue(c)
		},
		OnError: template.OnError,
		OnClose: func(c *Connection, err error) {
			l.release(c.ID())
			if template.OnClose != nil {
				template.OnClose(c, err)
			}
		},
	}
}

func (l *Listener) enqueue(c *Connection) {
	if l.established == nil {
		return
	}
	select {
	case l.established <- c:
	default:
		l.logger.Warn("accept queue full, connection not queued", "connection", c.ID())
	}
}

// Accept waits for the next established connection.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	if l.established == nil {
		return nil, ErrAcceptDisabled
	}
	select {
	case connection := <-l.established:
		return connection, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns a live connection by identity.
func (l *Listener) Lookup(id string) (*Connection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	connection := l.connections[id]
	return connection, connection != nil
}

// Len counts live connections.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, connection := range l.connections {
		if connection != nil {
			count++
		}
	}
	return count
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close refuses new upgrades and closes every live connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	live := make([]*Connection, 0, len(l.connections))
	for id, connection := range l.connections {
		if connection != nil {
			live = append(live, connection)
		}
		delete(l.connections, id)
	}
	l.mu.Unlock()
	close(l.done)

	for _, connection := range live {
		connection.Close()
	}
	return nil
}
