// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// Socket is the reliable, ordered message socket under a signaling
// leg. WebSocket adapts a gorilla/websocket connection; tests supply
// in-memory fakes.
type Socket interface {
	// Start begins delivering notifications to handler. It is called
	// once and must not block.
	Start(handler SocketHandler)

	// WriteText sends one text frame. Safe for concurrent use.
	WriteText(data []byte) error

	// Ping sends a transport-level ping. The peer's pong arrives
	// through SocketHandler.HandlePong.
	Ping() error

	// Close terminates the socket. HandleClose follows once the
	// socket has stopped. Idempotent.
	Close() error
}

// closeAbnormal is the close code for a socket that ended without a
// close frame (RFC 6455 section 7.4.1).
const closeAbnormal = 1006

// SocketHandler receives a socket's notifications. Calls for one
// socket never overlap. HandleClose is the last call and is made
// exactly once.
type SocketHandler interface {
	HandleText(data []byte)
	HandlePong()
	// HandleClose reports the close code and reason. A read failure
	// is reported as closeAbnormal with the error text as reason,
	// after HandleError.
	HandleClose(code int, reason string)
	HandleError(err error)
}
