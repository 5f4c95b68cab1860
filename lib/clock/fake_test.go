// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowMovesOnlyOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(3 * time.Second)
	if got, want := clock.Now(), epoch.Add(3*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFuncFiresAtDeadline(t *testing.T) {
	clock := Fake(epoch)
	fired := 0
	clock.AfterFunc(3*time.Second, func() { fired++ })

	clock.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("fired %d times before the deadline", fired)
	}
	clock.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired %d times at the deadline, want 1", fired)
	}
	clock.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("fired %d times after the deadline, want 1", fired)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	clock := Fake(epoch)
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false for a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop() = true")
	}
	clock.Advance(time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if clock.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", clock.Pending())
	}
}

func TestFakeAfterFuncOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "late") })
	clock.AfterFunc(time.Second, func() { order = append(order, "early") })
	clock.AfterFunc(2*time.Second, func() { order = append(order, "late-second") })

	clock.Advance(5 * time.Second)

	want := []string{"early", "late", "late-second"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for index := range want {
		if order[index] != want[index] {
			t.Fatalf("fired %v, want %v", order, want)
		}
	}
}

func TestFakeCallbackMaySchedule(t *testing.T) {
	clock := Fake(epoch)
	count := 0
	var rearm func()
	rearm = func() {
		count++
		clock.AfterFunc(time.Second, rearm)
	}
	clock.AfterFunc(time.Second, rearm)

	clock.Advance(3 * time.Second)
	if count != 3 {
		t.Fatalf("callback ran %d times over three intervals, want 3", count)
	}
	if clock.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", clock.Pending())
	}
}

func TestFakeCallbackMayStopAnother(t *testing.T) {
	clock := Fake(epoch)
	secondFired := false
	second := clock.AfterFunc(2*time.Second, func() { secondFired = true })
	clock.AfterFunc(time.Second, func() { second.Stop() })

	clock.Advance(2 * time.Second)
	if secondFired {
		t.Fatal("timer stopped by an earlier callback still fired")
	}
}

func TestFakeAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(time.Second)
	select {
	case <-channel:
		t.Fatal("After delivered before Advance")
	default:
	}

	clock.Advance(time.Second)
	select {
	case got := <-channel:
		if want := epoch.Add(time.Second); !got.Equal(want) {
			t.Fatalf("After delivered %v, want %v", got, want)
		}
	default:
		t.Fatal("After did not deliver after Advance")
	}

	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) did not deliver immediately")
	}
}

func TestWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	fired := make(chan struct{})
	go clock.AfterFunc(time.Second, func() { close(fired) })

	clock.WaitForTimers(1)
	clock.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer armed by another goroutine did not fire")
	}
}

func TestTimerStopNil(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Fatal("nil Timer Stop() = true")
	}
}
