// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of a WebRTC peer connection a data leg
// drives. It answers offers; it never creates them. Nor does it create
// data channels: the leg adopts the one the offering side opens, so
// that side chooses ordering and retransmits (unordered with no
// retransmits for the usual partially reliable setup).
type PeerConnection interface {
	// OnDataChannel registers the handler for channels the remote
	// side opens.
	OnDataChannel(handler func(DataChannel))

	// OnICECandidate registers the handler for local candidates. A
	// nil candidate marks the end of gathering.
	OnICECandidate(handler func(*webrtc.ICECandidateInit))

	SetRemoteDescription(description webrtc.SessionDescription) error
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(description webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// DataChannel is the part of a WebRTC data channel a data leg uses.
type DataChannel interface {
	Label() string

	OnOpen(handler func())
	OnClose(handler func())
	OnMessage(handler func(data []byte))
	OnError(handler func(err error))
	OnBufferedAmountLow(handler func())

	// SetBufferedAmountLowThreshold sets the level at or below which
	// the buffered-amount-low handler fires.
	SetBufferedAmountLowThreshold(threshold uint64)

	// BufferedAmount is the number of bytes queued but not yet sent.
	BufferedAmount() uint64

	Send(data []byte) error
	Close() error
}

// PeerFactory constructs the peer connection of a new Connection.
type PeerFactory func() (PeerConnection, error)

// NewPeerFactory returns a PeerFactory producing pion peer connections
// configured by ice. All connections share one pion API instance.
func NewPeerFactory(ice ICEConfig) (PeerFactory, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(ice.IncludeLoopback)
	if ice.PortMin != 0 || ice.PortMax != 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(ice.PortMin, ice.PortMax); err != nil {
			return nil, fmt.Errorf("setting UDP port range %d-%d: %w", ice.PortMin, ice.PortMax, err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	configuration := webrtc.Configuration{ICEServers: ice.Servers}

	return func() (PeerConnection, error) {
		connection, err := api.NewPeerConnection(configuration)
		if err != nil {
			return nil, fmt.Errorf("creating peer connection: %w", err)
		}
		return &pionPeer{connection: connection}, nil
	}, nil
}

type pionPeer struct {
	connection *webrtc.PeerConnection
}

func (p *pionPeer) OnDataChannel(handler func(DataChannel)) {
	p.connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		handler(&pionChannel{channel: channel})
	})
}

func (p *pionPeer) OnICECandidate(handler func(*webrtc.ICECandidateInit)) {
	p.connection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			handler(nil)
			return
		}
		init := candidate.ToJSON()
		handler(&init)
	})
}

func (p *pionPeer) SetRemoteDescription(description webrtc.SessionDescription) error {
	return p.connection.SetRemoteDescription(description)
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.connection.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(description webrtc.SessionDescription) error {
	return p.connection.SetLocalDescription(description)
}

func (p *pionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.connection.AddICECandidate(candidate)
}

func (p *pionPeer) Close() error {
	return p.connection.Close()
}

type pionChannel struct {
	channel *webrtc.DataChannel
}

func (c *pionChannel) Label() string { return c.channel.Label() }

func (c *pionChannel) OnOpen(handler func()) { c.channel.OnOpen(handler) }

func (c *pionChannel) OnClose(handler func()) { c.channel.OnClose(handler) }

func (c *pionChannel) OnMessage(handler func([]byte)) {
	c.channel.OnMessage(func(message webrtc.DataChannelMessage) {
		handler(message.Data)
	})
}

func (c *pionChannel) OnError(handler func(error)) { c.channel.OnError(handler) }

func (c *pionChannel) OnBufferedAmountLow(handler func()) { c.channel.OnBufferedAmountLow(handler) }

func (c *pionChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.channel.SetBufferedAmountLowThreshold(threshold)
}

func (c *pionChannel) BufferedAmount() uint64 { return c.channel.BufferedAmount() }

func (c *pionChannel) Send(data []byte) error { return c.channel.Send(data) }

func (c *pionChannel) Close() error { return c.channel.Close() }
