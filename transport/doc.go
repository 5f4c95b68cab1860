// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport runs peer connections that start on a WebSocket
// and move to a WebRTC data channel.
//
// A [Connection] has two legs. The [SignalingLeg] reads JSON envelopes
// ({"type": ..., "payload": ...}) from a [Socket] and writes the
// replies; the [DataLeg] answers the remote offer, trickles ICE
// candidates, adopts the single data channel the remote opens and
// carries typed binary messages over it. The legs never call each
// other: both publish and subscribe on a private per-connection bus,
// and the Connection turns bus events into its own lifecycle
// (Handshaking, Established, Closed) and the [Events] callbacks.
//
// Data-channel frames are a 4-byte little-endian [TypeID] followed by
// the payload encoded by lib/wire against the schema registered for
// that type. Types 0 and 1 ([TypePing], [TypePong]) are reserved for
// the data-channel heartbeat; the WebSocket leg uses protocol-level
// pings. Either heartbeat expiring closes the whole connection with
// [ErrPingTimeout].
//
// Sends are queued, in order, while the channel is not open or holds
// more buffered bytes than the configured threshold, and drained on
// the channel's buffered-amount-low notification.
//
// [Listener] is the http.Handler that upgrades requests, gives each
// socket a UUID identity and builds its Connection. [NewPeerFactory]
// supplies pion peer connections; tests substitute in-memory
// [PeerConnection] and [Socket] implementations.
//
// [RegisterMetrics] adds the package's Prometheus collectors to the
// default registry.
package transport
