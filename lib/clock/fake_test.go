// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	if got := Since(clock, epoch); got != 5*time.Second {
		t.Fatalf("Since(epoch) = %v, want 5s", got)
	}
}

func TestFakeClockAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(1 * time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(3 * time.Second)) {
			t.Fatalf("After delivered %v, want %v", fired, epoch.Add(3*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, duration := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(duration):
		default:
			t.Fatalf("After(%v) should be ready immediately", duration)
		}
	}
	if clock.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", clock.PendingCount())
	}
}

func TestFakeClockAfterFunc(t *testing.T) {
	clock := Fake(epoch)
	var calls atomic.Int32
	clock.AfterFunc(2*time.Second, func() { calls.Add(1) })

	if clock.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", clock.PendingCount())
	}

	clock.Advance(time.Second)
	if calls.Load() != 0 {
		t.Fatal("AfterFunc fired early")
	}
	clock.Advance(time.Second)
	if calls.Load() != 1 {
		t.Fatalf("AfterFunc fired %d times, want 1", calls.Load())
	}
	clock.Advance(time.Hour)
	if calls.Load() != 1 {
		t.Fatalf("AfterFunc fired %d times after a second advance, want 1", calls.Load())
	}
}

func TestFakeClockAfterFuncImmediate(t *testing.T) {
	clock := Fake(epoch)
	var called atomic.Bool
	timer := clock.AfterFunc(0, func() { called.Store(true) })
	if !called.Load() {
		t.Fatal("AfterFunc(0) should run synchronously")
	}
	if timer.Stop() {
		t.Fatal("Stop on an already-run timer should return false")
	}
}

func TestFakeClockStop(t *testing.T) {
	clock := Fake(epoch)
	var called atomic.Bool
	timer := clock.AfterFunc(time.Second, func() { called.Store(true) })

	if !timer.Stop() {
		t.Fatal("first Stop should return true")
	}
	if timer.Stop() {
		t.Fatal("second Stop should return false")
	}
	if clock.PendingCount() != 0 {
		t.Fatalf("PendingCount after Stop = %d, want 0", clock.PendingCount())
	}
	clock.Advance(time.Minute)
	if called.Load() {
		t.Fatal("stopped timer fired")
	}
}

func TestFakeClockDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []int
	clock.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	clock.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	clock.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	clock.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("fire order = %v, want [1 2 3]", order)
	}
}

func TestFakeClockRescheduleFromCallback(t *testing.T) {
	clock := Fake(epoch)
	var fired atomic.Int32
	var reschedule func()
	reschedule = func() {
		if fired.Add(1) < 3 {
			clock.AfterFunc(time.Second, reschedule)
		}
	}
	clock.AfterFunc(time.Second, reschedule)

	// The chained timer is scheduled from the advanced time.
	clock.Advance(10 * time.Second)
	if fired.Load() != 1 {
		t.Fatalf("after the first advance the timer fired %d times, want 1", fired.Load())
	}
	next, ok := clock.NextDeadline()
	if want := epoch.Add(11 * time.Second); !ok || !next.Equal(want) {
		t.Fatalf("NextDeadline = %v, %v; want %v, true", next, ok, want)
	}

	clock.Advance(time.Second)
	clock.Advance(time.Second)
	if fired.Load() != 3 {
		t.Fatalf("chained timer fired %d times, want 3", fired.Load())
	}
	if clock.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d after the chain ended, want 0", clock.PendingCount())
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	registered := make(chan struct{})
	go func() {
		clock.AfterFunc(time.Second, func() { close(registered) })
	}()

	clock.WaitForTimers(1)
	clock.Advance(time.Second)

	select {
	case <-registered:
	default:
		t.Fatal("timer registered by another goroutine did not fire")
	}
}

func TestFakeClockNextDeadline(t *testing.T) {
	clock := Fake(epoch)
	if _, ok := clock.NextDeadline(); ok {
		t.Fatal("NextDeadline reported a timer on an idle clock")
	}
	clock.AfterFunc(4*time.Second, func() {})
	clock.After(2 * time.Second)

	next, ok := clock.NextDeadline()
	if !ok || !next.Equal(epoch.Add(2*time.Second)) {
		t.Fatalf("NextDeadline = %v, %v; want %v, true", next, ok, epoch.Add(2*time.Second))
	}
}
