// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/coset/lib/clock"
	"github.com/bureau-foundation/coset/lib/config"
	"github.com/bureau-foundation/coset/lib/testutil"
	"github.com/bureau-foundation/coset/lib/wire"
)

// fakeSocket is an in-memory Socket. Close reports a normal closure
// synchronously, the way the WebSocket read loop eventually does.
type fakeSocket struct {
	mu      sync.Mutex
	handler SocketHandler
	written [][]byte
	pings   int
	closed  bool
}

func (s *fakeSocket) Start(handler SocketHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func (s *fakeSocket) WriteText(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("socket closed")
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return nil
}

func (s *fakeSocket) Close() error {
	s.remoteClose(1000, "")
	return nil
}

// remoteClose simulates the socket ending with a close frame.
func (s *fakeSocket) remoteClose(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler.HandleClose(code, reason)
	}
}

// readFailure simulates the socket's read loop ending on an error, the
// way WebSocket reports it.
func (s *fakeSocket) readFailure(err error) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	handler.HandleError(err)
	s.remoteClose(closeAbnormal, err.Error())
}

func (s *fakeSocket) receive(t *testing.T, text string) {
	t.Helper()
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		t.Fatal("socket not started")
	}
	handler.HandleText([]byte(text))
}

func (s *fakeSocket) pong() {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	handler.HandlePong()
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// sent returns every envelope written so far.
func (s *fakeSocket) sent(t *testing.T) []SignalMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]SignalMessage, 0, len(s.written))
	for _, frame := range s.written {
		message, err := ParseSignal(frame)
		if err != nil {
			t.Fatalf("socket carried an invalid envelope %q: %v", frame, err)
		}
		messages = append(messages, message)
	}
	return messages
}

func (s *fakeSocket) sentOfType(t *testing.T, kind SignalType) []SignalMessage {
	t.Helper()
	var matching []SignalMessage
	for _, message := range s.sent(t) {
		if message.Type == kind {
			matching = append(matching, message)
		}
	}
	return matching
}

// fakePeer is an in-memory PeerConnection.
type fakePeer struct {
	mu          sync.Mutex
	onChannel   func(DataChannel)
	onCandidate func(*webrtc.ICECandidateInit)
	remote      []webrtc.SessionDescription
	local       []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	closed      bool

	// beforeRemote runs inside SetRemoteDescription, without the lock.
	beforeRemote func()
	remoteErr    error
}

func (p *fakePeer) OnDataChannel(handler func(DataChannel)) {
	p.mu.Lock()
	p.onChannel = handler
	p.mu.Unlock()
}

func (p *fakePeer) OnICECandidate(handler func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = handler
	p.mu.Unlock()
}

func (p *fakePeer) SetRemoteDescription(description webrtc.SessionDescription) error {
	p.mu.Lock()
	hook := p.beforeRemote
	p.beforeRemote = nil
	p.mu.Unlock()
	if hook != nil {
		hook()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = append(p.remote, description)
	return nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(description webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, description)
	return nil
}

func (p *fakePeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// gather emits a local candidate.
func (p *fakePeer) gather(candidate string) {
	p.mu.Lock()
	handler := p.onCandidate
	p.mu.Unlock()
	handler(&webrtc.ICECandidateInit{Candidate: candidate})
}

// announce simulates the remote peer opening a data channel.
func (p *fakePeer) announce(label string) *fakeChannel {
	channel := &fakeChannel{label: label}
	p.mu.Lock()
	handler := p.onChannel
	p.mu.Unlock()
	handler(channel)
	return channel
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) appliedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.candidates))
	for index, candidate := range p.candidates {
		names[index] = candidate.Candidate
	}
	return names
}

func (p *fakePeer) remoteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remote)
}

// fakeChannel is an in-memory DataChannel. With accumulate set, every
// Send adds to the buffered amount until drain, which is how a real
// channel behaves under load.
type fakeChannel struct {
	label string

	mu         sync.Mutex
	onOpen     func()
	onClose    func()
	onMessage  func([]byte)
	onError    func(error)
	onLow      func()
	threshold  uint64
	buffered   uint64
	accumulate bool
	frames     [][]byte
	sendErr    error
	closed     bool
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) OnOpen(handler func()) {
	c.mu.Lock()
	c.onOpen = handler
	c.mu.Unlock()
}

func (c *fakeChannel) OnClose(handler func()) {
	c.mu.Lock()
	c.onClose = handler
	c.mu.Unlock()
}

func (c *fakeChannel) OnMessage(handler func([]byte)) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

func (c *fakeChannel) OnError(handler func(error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *fakeChannel) OnBufferedAmountLow(handler func()) {
	c.mu.Lock()
	c.onLow = handler
	c.mu.Unlock()
}

func (c *fakeChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.mu.Lock()
	c.threshold = threshold
	c.mu.Unlock()
}

func (c *fakeChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	if c.accumulate {
		c.buffered += uint64(len(data))
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	handler := c.onOpen
	c.mu.Unlock()
	handler()
}

func (c *fakeChannel) deliver(data []byte) {
	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()
	handler(data)
}

func (c *fakeChannel) fail(err error) {
	c.mu.Lock()
	handler := c.onError
	c.mu.Unlock()
	handler(err)
}

func (c *fakeChannel) remoteClose() {
	c.mu.Lock()
	handler := c.onClose
	c.mu.Unlock()
	handler()
}

func (c *fakeChannel) setBuffered(amount uint64) {
	c.mu.Lock()
	c.buffered = amount
	c.mu.Unlock()
}

// drain empties the buffer and raises the low-water notification.
func (c *fakeChannel) drain() {
	c.setBuffered(0)
	c.notifyLow()
}

// notifyLow raises the low-water notification without touching the
// buffered amount.
func (c *fakeChannel) notifyLow() {
	c.mu.Lock()
	handler := c.onLow
	c.mu.Unlock()
	handler()
}

func (c *fakeChannel) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// harness wires a Connection to the fakes and records its events.
type harness struct {
	conn   *Connection
	socket *fakeSocket
	peer   *fakePeer
	clock  *clock.FakeClock

	mu          sync.Mutex
	timeline    []string
	errors      []error
	closeCauses []error
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// newHarness builds a connection with quiet heartbeats and handshake
// deadline; tests that exercise them override the config.
func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()
	h := &harness{
		socket: &fakeSocket{},
		peer:   &fakePeer{},
		clock:  clock.Fake(epoch),
	}

	quiet := config.HeartbeatConfig{PingInterval: time.Hour, PingTimeout: time.Hour}
	cfg := Config{
		Clock:     h.clock,
		Logger:    testutil.DiscardLogger(),
		NewPeer:   func() (PeerConnection, error) { return h.peer, nil },
		Signaling: config.SignalingConfig{Heartbeat: quiet},
		Data:      config.DataConfig{Heartbeat: quiet, HandshakeTimeout: 2 * time.Hour},
		Events: Events{
			OnEstablished: func(*Connection) { h.record("established") },
			OnError: func(_ *Connection, err error) {
				h.mu.Lock()
				h.errors = append(h.errors, err)
				h.timeline = append(h.timeline, "error")
				h.mu.Unlock()
			},
			OnClose: func(_ *Connection, err error) {
				h.mu.Lock()
				h.closeCauses = append(h.closeCauses, err)
				h.timeline = append(h.timeline, "closed")
				h.mu.Unlock()
			},
		},
	}
	if configure != nil {
		configure(&cfg)
	}

	conn, err := NewConnection(testutil.UniqueID("conn"), h.socket, cfg)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	h.conn = conn
	t.Cleanup(func() { conn.Close() })
	conn.Start()
	return h
}

func (h *harness) record(entry string) {
	h.mu.Lock()
	h.timeline = append(h.timeline, entry)
	h.mu.Unlock()
}

func (h *harness) events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.timeline...)
}

func (h *harness) reportedErrors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errors...)
}

func (h *harness) closes() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.closeCauses...)
}

// offer delivers a minimal offer envelope.
func (h *harness) offer(t *testing.T) {
	t.Helper()
	h.socket.receive(t, `{"type":"webrtc-offer","payload":{"type":"offer","sdp":"v=0 offer"}}`)
}

func (h *harness) remoteCandidate(t *testing.T, candidate string) {
	t.Helper()
	payload, err := json.Marshal(webrtc.ICECandidateInit{Candidate: candidate})
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	h.socket.receive(t, `{"type":"webrtc-candidate","payload":`+string(payload)+`}`)
}

// establish runs the handshake and opens a data channel.
func (h *harness) establish(t *testing.T) *fakeChannel {
	t.Helper()
	h.offer(t)
	channel := h.peer.announce("coset")
	channel.open()
	if state := h.conn.State(); state != Established {
		t.Fatalf("state after open = %v, want established", state)
	}
	return channel
}

// requireClosedWith asserts exactly one close, caused by target (nil
// for an orderly close).
func (h *harness) requireClosedWith(t *testing.T, target error) {
	t.Helper()
	closes := h.closes()
	if len(closes) != 1 {
		t.Fatalf("OnClose ran %d times, want 1", len(closes))
	}
	switch {
	case target == nil && closes[0] != nil:
		t.Fatalf("close cause = %v, want nil", closes[0])
	case target != nil && !errors.Is(closes[0], target):
		t.Fatalf("close cause = %v, want %v", closes[0], target)
	}
	if state := h.conn.State(); state != Closed {
		t.Fatalf("state = %v, want closed", state)
	}
}

// decodeFrame splits a data-channel frame and decodes it against
// schema.
func decodeFrame(t *testing.T, frame []byte, schema *wire.Schema) (TypeID, wire.Record) {
	t.Helper()
	typeID, payload, err := unframe(frame)
	if err != nil {
		t.Fatalf("unframe: %v", err)
	}
	record, err := wire.Decode(schema, payload)
	if err != nil {
		t.Fatalf("decode type %s: %v", typeID, err)
	}
	return typeID, record
}
