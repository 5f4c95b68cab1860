// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/coset/lib/clock"
	"github.com/bureau-foundation/coset/lib/config"
	"github.com/bureau-foundation/coset/lib/wire"
)

// DataLegState is the lifecycle of a data leg.
type DataLegState int

const (
	// DataIdle: no handshake message seen yet.
	DataIdle DataLegState = iota
	// DataNegotiating: offer/answer/candidate exchange under way.
	DataNegotiating
	// DataOpen: the channel is open. Entered once.
	DataOpen
	// DataClosed is terminal.
	DataClosed
)

func (s DataLegState) String() string {
	switch s {
	case DataIdle:
		return "idle"
	case DataNegotiating:
		return "negotiating"
	case DataOpen:
		return "open"
	case DataClosed:
		return "closed"
	default:
		return fmt.Sprintf("DataLegState(%d)", int(s))
	}
}

// queuedPackage is a send deferred until the channel can take it.
type queuedPackage struct {
	typeID  TypeID
	payload wire.Record
}

// DataLeg answers the remote offer arriving over the bus, runs the
// resulting data channel, and owns the connection's handler registry,
// schema registry and send queue.
//
// Locking: mu guards state and negotiation bookkeeping; sendMu guards
// the queue and orders every transmission; dispatchMu serializes
// handler invocations with each other and with the open transition.
// No bus event is published and no handler is called with mu or
// sendMu held.
type DataLeg struct {
	id        string
	peer      PeerConnection
	bus       *bus
	clock     clock.Clock
	config    config.DataConfig
	logger    *slog.Logger
	heartbeat *heartbeat

	handlers *handlerRegistry
	schemas  *schemaRegistry

	mu                sync.Mutex
	state             DataLegState
	channel           DataChannel
	negotiating       bool
	remoteDescribed   bool
	remoteCandidates  []webrtc.ICECandidateInit
	localReady        bool
	localCandidates   []webrtc.ICECandidateInit
	handshakeDeadline *clock.Timer

	sendMu sync.Mutex
	queue  queue[queuedPackage]

	dispatchMu sync.Mutex
	openOnce   sync.Once
}

func newDataLeg(id string, peer PeerConnection, events *bus, clk clock.Clock, cfg config.DataConfig, logger *slog.Logger) *DataLeg {
	leg := &DataLeg{
		id:       id,
		peer:     peer,
		bus:      events,
		clock:    clk,
		config:   cfg,
		logger:   logger,
		handlers: newHandlerRegistry(),
		schemas:  newSchemaRegistry(),
	}
	leg.heartbeat = newHeartbeat(clk, cfg.Heartbeat, leg.sendPing, leg.expire)

	// Built-in heartbeat handlers. Registration on a fresh registry
	// cannot fail.
	leg.handlers.register(TypePing, HandlerFunc(func(Message) { leg.sendInternal(TypePong) }), true)
	leg.handlers.register(TypePong, HandlerFunc(func(Message) { leg.heartbeat.acknowledge() }), true)

	peer.OnICECandidate(leg.handleLocalCandidate)
	peer.OnDataChannel(leg.handleDataChannel)
	subscribe(events, leg.handleSignal)
	return leg
}

// start arms the handshake deadline.
func (l *DataLeg) start() {
	if l.config.HandshakeTimeout <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == DataOpen || l.state == DataClosed {
		return
	}
	l.handshakeDeadline = l.clock.AfterFunc(l.config.HandshakeTimeout, l.handshakeExpired)
}

// State returns the current state.
func (l *DataLeg) State() DataLegState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *DataLeg) handleSignal(event signalReceived) {
	message := event.message
	switch message.Type {
	case SignalOffer:
		l.applyOffer(message)
	case SignalAnswer:
		l.applyAnswer(message)
	case SignalCandidate:
		l.applyCandidate(message)
	case SignalClose:
		l.logger.Info("peer requested close", "connection", l.id)
		if l.shutdown() {
			l.bus.publish(dataClosed{})
		}
	default:
		l.logger.Debug("ignoring signaling message", "connection", l.id, "type", message.Type)
	}
}

// beginNegotiation claims the single handshake slot. It refuses once
// the channel is open, and while another offer or answer is being
// applied.
func (l *DataLeg) beginNegotiation(kind SignalType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == DataOpen || l.state == DataClosed:
		l.logger.Debug("ignoring handshake message", "connection", l.id, "type", kind, "state", l.state)
		return false
	case l.negotiating:
		l.logger.Warn("dropping handshake message", "connection", l.id, "type", kind, "error", ErrHandshakeInProgress)
		return false
	}
	l.negotiating = true
	l.state = DataNegotiating
	return true
}

func (l *DataLeg) endNegotiation() {
	l.mu.Lock()
	l.negotiating = false
	l.mu.Unlock()
}

func (l *DataLeg) applyOffer(message SignalMessage) {
	if !l.beginNegotiation(message.Type) {
		return
	}
	defer l.endNegotiation()

	var offer webrtc.SessionDescription
	if err := message.decodePayload(&offer); err != nil {
		l.fail(err)
		return
	}
	if offer.Type == 0 {
		offer.Type = webrtc.SDPTypeOffer
	}
	if err := l.peer.SetRemoteDescription(offer); err != nil {
		l.fail(fmt.Errorf("applying offer: %w", err))
		return
	}
	if err := l.remoteDescriptionSet(); err != nil {
		l.fail(err)
		return
	}

	answer, err := l.peer.CreateAnswer()
	if err != nil {
		l.fail(fmt.Errorf("creating answer: %w", err))
		return
	}
	if err := l.peer.SetLocalDescription(answer); err != nil {
		l.fail(fmt.Errorf("applying answer: %w", err))
		return
	}

	reply, err := NewSignal(SignalAnswer, answer)
	if err != nil {
		l.fail(err)
		return
	}
	l.bus.publish(signalSend{message: reply})
	l.logger.Debug("answered offer", "connection", l.id)

	l.releaseLocalCandidates()
}

func (l *DataLeg) applyAnswer(message SignalMessage) {
	if !l.beginNegotiation(message.Type) {
		return
	}
	defer l.endNegotiation()

	var answer webrtc.SessionDescription
	if err := message.decodePayload(&answer); err != nil {
		l.fail(err)
		return
	}
	if answer.Type == 0 {
		answer.Type = webrtc.SDPTypeAnswer
	}
	if err := l.peer.SetRemoteDescription(answer); err != nil {
		l.fail(fmt.Errorf("applying answer: %w", err))
		return
	}
	if err := l.remoteDescriptionSet(); err != nil {
		l.fail(err)
		return
	}
	l.releaseLocalCandidates()
}

// remoteDescriptionSet applies the remote candidates that arrived
// before the description did.
func (l *DataLeg) remoteDescriptionSet() error {
	l.mu.Lock()
	l.remoteDescribed = true
	pending := l.remoteCandidates
	l.remoteCandidates = nil
	l.mu.Unlock()

	for _, candidate := range pending {
		if err := l.peer.AddICECandidate(candidate); err != nil {
			l.logger.Warn("applying buffered candidate failed", "connection", l.id, "error", err)
		}
	}
	return nil
}

func (l *DataLeg) applyCandidate(message SignalMessage) {
	var candidate webrtc.ICECandidateInit
	if err := message.decodePayload(&candidate); err != nil {
		l.fail(err)
		return
	}

	l.mu.Lock()
	if l.state == DataOpen || l.state == DataClosed {
		l.mu.Unlock()
		return
	}
	l.state = DataNegotiating
	if !l.remoteDescribed {
		l.remoteCandidates = append(l.remoteCandidates, candidate)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if err := l.peer.AddICECandidate(candidate); err != nil {
		l.logger.Warn("applying remote candidate failed", "connection", l.id, "error", err)
		return
	}
	if l.config.EchoCandidates {
		l.bus.publish(signalSend{message: message})
	}
}

// handleLocalCandidate trickles a local candidate to the peer. Until
// the answer has gone out candidates are held back, and once the
// channel is open they are no longer sent.
func (l *DataLeg) handleLocalCandidate(candidate *webrtc.ICECandidateInit) {
	if candidate == nil {
		l.logger.Debug("candidate gathering complete", "connection", l.id)
		return
	}

	l.mu.Lock()
	if l.state == DataOpen || l.state == DataClosed {
		l.mu.Unlock()
		return
	}
	if !l.localReady {
		l.localCandidates = append(l.localCandidates, *candidate)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.publishCandidate(*candidate)
}

func (l *DataLeg) releaseLocalCandidates() {
	l.mu.Lock()
	l.localReady = true
	pending := l.localCandidates
	l.localCandidates = nil
	l.mu.Unlock()

	for _, candidate := range pending {
		l.publishCandidate(candidate)
	}
}

func (l *DataLeg) publishCandidate(candidate webrtc.ICECandidateInit) {
	message, err := NewSignal(SignalCandidate, candidate)
	if err != nil {
		l.logger.Warn("encoding local candidate failed", "connection", l.id, "error", err)
		return
	}
	l.bus.publish(signalSend{message: message})
}

// handleDataChannel adopts the first channel the peer opens and closes
// any later one.
func (l *DataLeg) handleDataChannel(channel DataChannel) {
	l.mu.Lock()
	if l.channel != nil || l.state == DataClosed {
		l.mu.Unlock()
		l.logger.Warn("closing extra data channel", "connection", l.id, "label", channel.Label())
		channel.Close()
		return
	}
	l.channel = channel
	l.mu.Unlock()

	l.logger.Debug("data channel received", "connection", l.id, "label", channel.Label())
	channel.SetBufferedAmountLowThreshold(l.config.BufferedAmountLowThreshold)
	channel.OnOpen(l.ensureOpen)
	channel.OnClose(l.handleChannelClose)
	channel.OnMessage(l.handleMessage)
	channel.OnError(l.handleChannelError)
	channel.OnBufferedAmountLow(l.sendNext)
}

// ensureOpen performs the single transition to DataOpen. The channel's
// open notification normally triggers it; the first message does when
// the notification is late.
func (l *DataLeg) ensureOpen() {
	l.openOnce.Do(func() {
		l.dispatchMu.Lock()
		defer l.dispatchMu.Unlock()

		l.mu.Lock()
		if l.state == DataClosed {
			l.mu.Unlock()
			return
		}
		l.state = DataOpen
		l.handshakeDeadline.Stop()
		l.localCandidates = nil
		l.remoteCandidates = nil
		l.mu.Unlock()

		l.logger.Debug("data channel open", "connection", l.id)
		l.heartbeat.start()
		l.bus.publish(dataOpened{})
		l.flush()
	})
}

// handleMessage decodes one frame and dispatches it. Any failure ends
// the connection.
func (l *DataLeg) handleMessage(data []byte) {
	l.ensureOpen()

	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	if l.State() != DataOpen {
		return
	}

	typeID, payload, err := unframe(data)
	if err != nil {
		l.fail(&ReceiveError{Type: typeID, Err: fmt.Errorf("%w: %w", ErrDecodeFailure, err)})
		return
	}

	var record wire.Record
	if schema := l.schemas.lookup(typeID); schema != nil {
		record, err = wire.Decode(schema, payload)
		if err != nil {
			l.fail(&ReceiveError{Type: typeID, Err: fmt.Errorf("%w: %w", ErrDecodeFailure, err)})
			return
		}
	} else if len(payload) > 0 {
		l.fail(&ReceiveError{Type: typeID, Err: fmt.Errorf("%w: %w: %d payload bytes for a type without schema",
			ErrDecodeFailure, wire.ErrInvalidBufferLength, len(payload))})
		return
	}

	handlers := l.handlers.lookup(typeID)
	if len(handlers) == 0 {
		l.fail(&ReceiveError{Type: typeID, Err: ErrNoHandler})
		return
	}

	if !typeID.Reserved() {
		messagesReceived.Inc()
	}
	message := Message{Type: typeID, Payload: record}
	for _, handler := range handlers {
		handler.HandleMessage(message)
	}
}

func (l *DataLeg) handleChannelClose() {
	l.logger.Debug("data channel closed", "connection", l.id)
	if l.shutdown() {
		l.bus.publish(dataClosed{})
	}
}

func (l *DataLeg) handleChannelError(err error) {
	l.fail(fmt.Errorf("data channel: %w", err))
}

// Send transmits an application message, or queues it while the
// channel is not open, is holding buffered bytes, or has older
// messages waiting. Immediate transmission errors are returned and
// also end the connection.
func (l *DataLeg) Send(t TypeID, payload wire.Record) error {
	if t.Reserved() {
		return fmt.Errorf("%w: %s", ErrReservedType, t)
	}
	return l.send(queuedPackage{typeID: t, payload: payload})
}

// sendInternal sends a heartbeat message through the same queue.
func (l *DataLeg) sendInternal(t TypeID) {
	if err := l.send(queuedPackage{typeID: t}); err != nil && !errors.Is(err, ErrClosed) {
		l.logger.Debug("heartbeat send failed", "connection", l.id, "type", t, "error", err)
	}
}

func (l *DataLeg) send(pkg queuedPackage) error {
	l.sendMu.Lock()

	l.mu.Lock()
	state, channel := l.state, l.channel
	l.mu.Unlock()

	if state == DataClosed {
		l.sendMu.Unlock()
		return ErrClosed
	}
	if state != DataOpen || l.queue.len() > 0 || channel.BufferedAmount() > l.config.BufferedAmountLowThreshold {
		l.queue.push(pkg)
		l.sendMu.Unlock()
		if !pkg.typeID.Reserved() {
			messagesQueued.Inc()
		}
		return nil
	}

	err := l.transmit(channel, pkg)
	l.sendMu.Unlock()

	if err != nil {
		l.fail(err)
	}
	return err
}

// flush transmits queued messages in order while the channel is open
// and drained to the threshold. It runs once, on open.
func (l *DataLeg) flush() {
	l.sendMu.Lock()
	var err error
	for l.queue.len() > 0 {
		l.mu.Lock()
		state, channel := l.state, l.channel
		l.mu.Unlock()

		if state != DataOpen || channel.BufferedAmount() > l.config.BufferedAmountLowThreshold {
			break
		}
		pkg, _ := l.queue.shift()
		if err = l.transmit(channel, pkg); err != nil {
			break
		}
	}
	l.sendMu.Unlock()

	if err != nil {
		l.fail(err)
	}
}

// sendNext handles a buffered-amount-low notification: it transmits at
// most one queued package, and only while the channel holds no more
// than the threshold.
func (l *DataLeg) sendNext() {
	l.sendMu.Lock()
	l.mu.Lock()
	state, channel := l.state, l.channel
	l.mu.Unlock()

	if l.queue.len() == 0 || state != DataOpen || channel.BufferedAmount() > l.config.BufferedAmountLowThreshold {
		l.sendMu.Unlock()
		return
	}
	pkg, _ := l.queue.shift()
	err := l.transmit(channel, pkg)
	l.sendMu.Unlock()

	if err != nil {
		l.fail(err)
	}
}

// transmit encodes and sends one package. Caller holds sendMu.
func (l *DataLeg) transmit(channel DataChannel, pkg queuedPackage) error {
	schema := l.schemas.lookup(pkg.typeID)
	if pkg.payload != nil && schema == nil {
		return &SendError{Type: pkg.typeID, Err: ErrMissingSchema}
	}

	payload, err := wire.Encode(schema, pkg.payload)
	if err != nil {
		return &SendError{Type: pkg.typeID, Err: fmt.Errorf("%w: %w", ErrEncodeFailure, err)}
	}
	if err := channel.Send(frame(pkg.typeID, payload)); err != nil {
		return &SendError{Type: pkg.typeID, Err: err}
	}

	if !pkg.typeID.Reserved() {
		messagesSent.Inc()
	}
	return nil
}

func (l *DataLeg) sendPing() {
	l.sendInternal(TypePing)
}

func (l *DataLeg) expire() {
	l.logger.Warn("data heartbeat expired", "connection", l.id)
	l.fail(fmt.Errorf("data leg: %w", ErrPingTimeout))
}

func (l *DataLeg) handshakeExpired() {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	if state == DataOpen || state == DataClosed {
		return
	}
	l.fail(fmt.Errorf("%w after %v", ErrHandshakeTimeout, l.config.HandshakeTimeout))
}

// fail reports a fatal error unless the leg is already closed.
func (l *DataLeg) fail(err error) {
	if l.State() == DataClosed {
		return
	}
	l.bus.publish(dataFailed{err: err})
}

// shutdown tears the leg down and reports whether this call did it.
// Callbacks arriving afterwards find the leg closed and do nothing.
func (l *DataLeg) shutdown() bool {
	l.mu.Lock()
	if l.state == DataClosed {
		l.mu.Unlock()
		return false
	}
	l.state = DataClosed
	channel := l.channel
	l.handshakeDeadline.Stop()
	l.remoteCandidates = nil
	l.localCandidates = nil
	l.mu.Unlock()

	l.heartbeat.stop()

	l.sendMu.Lock()
	l.queue.clear()
	l.sendMu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			l.logger.Debug("closing data channel failed", "connection", l.id, "error", err)
		}
	}
	if err := l.peer.Close(); err != nil {
		l.logger.Debug("closing peer connection failed", "connection", l.id, "error", err)
	}
	return true
}

// Close tears the leg down. Idempotent.
func (l *DataLeg) Close() error {
	l.shutdown()
	return nil
}
