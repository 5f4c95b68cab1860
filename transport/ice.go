// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/coset/lib/config"
)

// ICEConfig holds the candidate-gathering settings for peer
// connections built by NewPeerFactory.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN). Order matters:
	// pion tries them in sequence. Empty means host candidates only,
	// which is enough on one machine or one LAN.
	Servers []webrtc.ICEServer

	// IncludeLoopback gathers loopback candidates, needed when both
	// peers run on the same host with no other shared interface.
	IncludeLoopback bool

	// PortMin and PortMax bound local UDP ports; zero leaves the
	// choice to the operating system.
	PortMin uint16
	PortMax uint16
}

// ICEConfigFrom converts the ice section of the server configuration.
// Servers without URLs are skipped.
func ICEConfigFrom(section config.ICEConfig) ICEConfig {
	ice := ICEConfig{
		IncludeLoopback: section.IncludeLoopback,
		PortMin:         section.PortMin,
		PortMax:         section.PortMax,
	}
	for _, server := range section.Servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" || server.Credential != "" {
			entry.Username = server.Username
			entry.Credential = server.Credential
			entry.CredentialType = webrtc.ICECredentialTypePassword
		}
		ice.Servers = append(ice.Servers, entry)
	}
	return ice
}
