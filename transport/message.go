// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/coset/lib/wire"
)

// TypeID discriminates data-channel messages. Ids 0 and 1 are the
// heartbeat's; every other id belongs to the application.
type TypeID uint32

const (
	// TypePing asks the peer to answer with TypePong. No payload.
	TypePing TypeID = 0
	// TypePong answers TypePing. No payload.
	TypePong TypeID = 1
)

// Reserved reports whether t is a heartbeat type.
func (t TypeID) Reserved() bool {
	return t == TypePing || t == TypePong
}

func (t TypeID) String() string {
	switch t {
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	}
	return fmt.Sprintf("%d", uint32(t))
}

// Message is one decoded data-channel message. Payload is nil for
// types without a schema.
type Message struct {
	Type    TypeID
	Payload wire.Record
}

// typeIDSize is the width of the frame prefix.
const typeIDSize = 4

// frame prefixes payload with the little-endian type id.
func frame(t TypeID, payload []byte) []byte {
	buffer := make([]byte, typeIDSize+len(payload))
	binary.LittleEndian.PutUint32(buffer, uint32(t))
	copy(buffer[typeIDSize:], payload)
	return buffer
}

func unframe(buffer []byte) (TypeID, []byte, error) {
	if len(buffer) < typeIDSize {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes has no type id", wire.ErrInvalidBufferLength, len(buffer))
	}
	return TypeID(binary.LittleEndian.Uint32(buffer)), buffer[typeIDSize:], nil
}

// SignalType is the "type" of a signaling envelope.
type SignalType string

const (
	SignalOffer     SignalType = "webrtc-offer"
	SignalAnswer    SignalType = "webrtc-answer"
	SignalCandidate SignalType = "webrtc-candidate"
	SignalClose     SignalType = "close"
)

// SignalMessage is the JSON envelope exchanged on the signaling leg.
// Offer and answer payloads are session descriptions ({type, sdp});
// candidate payloads are ICE candidate descriptors.
type SignalMessage struct {
	Type    SignalType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewSignal builds an envelope around payload, which may be nil.
func NewSignal(t SignalType, payload any) (SignalMessage, error) {
	message := SignalMessage{Type: t}
	if payload == nil {
		return message, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return SignalMessage{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	message.Payload = encoded
	return message, nil
}

// ParseSignal decodes one signaling frame. The frame must be a JSON
// object whose "type" is a non-empty string.
func ParseSignal(text []byte) (SignalMessage, error) {
	var message SignalMessage
	if err := json.Unmarshal(text, &message); err != nil {
		return SignalMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if message.Type == "" {
		return SignalMessage{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	if bytes.Equal(bytes.TrimSpace(message.Payload), []byte("null")) {
		message.Payload = nil
	}
	return message, nil
}

// decodePayload unmarshals the envelope payload into target.
func (m SignalMessage) decodePayload(target any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, target); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, m.Type, err)
	}
	return nil
}
