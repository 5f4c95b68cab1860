// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for coset servers.
//
// Configuration is loaded from a single file named by the COSET_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). The file is merged over [Default]; there is no
// automatic file search.
//
// The file may carry development, staging and production sections
// that override base values when [Config].Environment matches.
// Without a production section, production switches logging to JSON
// and stops gathering loopback ICE candidates.
//
// Durations are Go duration strings ("3s", "1m30s"). ${VAR} and
// ${VAR:-default} are expanded in the schema catalog path and in ICE
// server credentials, so TURN secrets can stay out of the file.
//
// Key exports:
//
//   - [Config] -- master struct with Server, Signaling, Data, ICE,
//     Schemas and Logging sections
//   - [Default] and [DefaultHeartbeat] -- baseline values
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
//
// This package depends on no other coset packages.
package config
