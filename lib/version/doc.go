// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for coset binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/coset/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without them, [Info] falls back to the VCS stamp embedded by the go
// command, and to "unknown" when there is none (test binaries).
package version
