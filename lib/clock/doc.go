// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by connection
// timers.
//
// Components hold a Clock instead of calling the time package. Real()
// is the wall clock; Fake() returns a clock that stands still until the
// test calls Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go startHeartbeat(fake) // arms fake.AfterFunc(interval, ping)
//	fake.WaitForTimers(1)
//	fake.Advance(interval) // ping runs here, synchronously
//
// WaitForTimers closes the gap between a goroutine arming a timer and
// the test moving time past it.
package clock
