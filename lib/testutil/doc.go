// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by coset tests.
//
// [RequireReceive], [RequireClosed] and [RequireNoReceive] bound every
// channel wait with a wall-clock timeout so a broken test fails instead
// of hanging. They are the only place tests use real timeouts; timer
// behavior under test goes through lib/clock's fake clock.
//
// [UniqueID] hands out distinct identifiers without consulting the
// clock, and [DiscardLogger] is the logger tests inject into
// components that require one.
package testutil
