// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/coset/lib/netutil"
)

// socketWriteTimeout bounds every frame and control write.
const socketWriteTimeout = 10 * time.Second

// DefaultSocketReadLimit caps an incoming frame when no limit is set.
// Signaling envelopes are small JSON objects; SDP is a few KiB.
const DefaultSocketReadLimit = 64 << 10

// WebSocket adapts a gorilla/websocket connection to Socket. gorilla
// allows one concurrent writer, so data frames are serialized here;
// control frames go through WriteControl, which gorilla allows
// alongside other calls.
type WebSocket struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	closing   atomic.Bool
	closeOnce sync.Once
}

var _ Socket = (*WebSocket)(nil)

// NewWebSocket wraps an upgraded or dialed connection and applies
// DefaultSocketReadLimit.
func NewWebSocket(conn *websocket.Conn, logger *slog.Logger) *WebSocket {
	conn.SetReadLimit(DefaultSocketReadLimit)
	return &WebSocket{conn: conn, logger: logger}
}

// SetReadLimit replaces the frame size cap. Zero or less keeps the
// current one. Call it before Start.
func (s *WebSocket) SetReadLimit(limit int64) {
	if limit > 0 {
		s.conn.SetReadLimit(limit)
	}
}

// Start installs the pong handler and starts the read loop.
func (s *WebSocket) Start(handler SocketHandler) {
	s.conn.SetPongHandler(func(string) error {
		handler.HandlePong()
		return nil
	})
	go s.readLoop(handler)
}

func (s *WebSocket) readLoop(handler SocketHandler) {
	defer s.conn.Close()

	for {
		// Binary frames are handed over as well; the signaling leg
		// rejects anything that is not a JSON envelope.
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(handler, err)
			return
		}
		handler.HandleText(data)
	}
}

// finish turns the read loop's terminal error into notifications.
func (s *WebSocket) finish(handler SocketHandler, err error) {
	var closeError *websocket.CloseError
	switch {
	case errors.As(err, &closeError):
		handler.HandleClose(closeError.Code, closeError.Text)
	case s.closing.Load():
		handler.HandleClose(websocket.CloseNormalClosure, "")
	case netutil.IsExpectedCloseError(err):
		s.logger.Debug("signaling socket dropped", "remote", s.conn.RemoteAddr().String(), "error", err)
		handler.HandleClose(websocket.CloseAbnormalClosure, "")
	default:
		s.logger.Debug("signaling socket read failed", "remote", s.conn.RemoteAddr().String(), "error", err)
		handler.HandleError(err)
		handler.HandleClose(websocket.CloseAbnormalClosure, err.Error())
	}
}

// WriteText sends one text frame.
func (s *WebSocket) WriteText(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame.
func (s *WebSocket) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteTimeout))
}

// Close sends a normal close frame and closes the connection, which
// ends the read loop.
func (s *WebSocket) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("sending close frame failed", "error", err)
		}
		s.conn.Close()
	})
	return nil
}
