// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

// Protocol errors. A connection reports them through Events.OnError;
// the codec's own sentinels (wire.ErrMissingData,
// wire.ErrInvalidBufferLength, wire.ErrInvalidSize,
// wire.ErrInvalidValue) are wrapped rather than redeclared.
var (
	// ErrInvalidMessage is a signaling frame that is not a JSON object
	// with a non-empty "type", or a handshake payload that cannot be
	// parsed.
	ErrInvalidMessage = errors.New("transport: invalid signaling message")

	// ErrReservedType is returned when an application registers a
	// handler or schema for the ping or pong type, or sends one.
	ErrReservedType = errors.New("transport: reserved message type")

	// ErrDuplicateHandler is returned when the same handler value is
	// registered twice for one type.
	ErrDuplicateHandler = errors.New("transport: duplicate handler")

	// ErrDuplicateSchema is returned when a type already has a schema.
	ErrDuplicateSchema = errors.New("transport: duplicate schema")

	// ErrMissingSchema is returned when a payload is sent for a type
	// with no registered schema.
	ErrMissingSchema = errors.New("transport: missing schema")
)

// Transport errors.
var (
	// ErrUnsupported means no peer connection could be constructed.
	// NewConnection fails with it.
	ErrUnsupported = errors.New("transport: peer connections unsupported")

	// ErrHandshakeTimeout means the data channel did not open in time.
	ErrHandshakeTimeout = errors.New("transport: handshake timed out")

	// ErrPingTimeout means a leg's heartbeat went unanswered.
	ErrPingTimeout = errors.New("transport: ping timed out")

	// ErrHandshakeInProgress is logged when an offer or answer arrives
	// while another is still being applied. The late message is
	// dropped.
	ErrHandshakeInProgress = errors.New("transport: handshake already in progress")

	// ErrSocketFailed means the signaling socket ended on a read
	// failure rather than a close frame or an ordinary disconnect.
	ErrSocketFailed = errors.New("transport: signaling socket failed")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

// Per-message errors, carried inside SendError and ReceiveError.
var (
	// ErrEncodeFailure wraps a codec error on the send path.
	ErrEncodeFailure = errors.New("transport: encode failure")

	// ErrDecodeFailure wraps a codec or framing error on the receive
	// path.
	ErrDecodeFailure = errors.New("transport: decode failure")

	// ErrNoHandler is a message of a type nobody handles.
	ErrNoHandler = errors.New("transport: no handler")
)

// SendError is a failure to transmit one message. It ends the
// connection.
type SendError struct {
	Type TypeID
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending message type %d: %v", e.Type, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError is a failure to deliver one inbound message. It ends
// the connection.
type ReceiveError struct {
	Type TypeID
	Err  error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receiving message type %d: %v", e.Type, e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// errorKind is the metrics label for err.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrPingTimeout):
		return "ping_timeout"
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.Is(err, ErrSocketFailed):
		return "socket"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrNoHandler):
		return "no_handler"
	case errors.Is(err, ErrDecodeFailure):
		return "decode"
	case errors.Is(err, ErrEncodeFailure), errors.Is(err, ErrMissingSchema):
		return "encode"
	}
	var sendError *SendError
	if errors.As(err, &sendError) {
		return "send"
	}
	var receiveError *ReceiveError
	if errors.As(err, &receiveError) {
		return "receive"
	}
	return "transport"
}
