package engine

import (
	"testing"
	"time"
)

func TestEventSignalWakesWaiter(t *testing.T) {
	ev := NewEvent(0)

	done := make(chan struct{})
	go func() {
		ev.waitHost()
		close(done)
	}()

	ev.signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by signal")
	}
	if !ev.Signaled() {
		t.Error("event not in signaled state after signal")
	}
}

func TestEventReuseAfterReArm(t *testing.T) {
	ev := NewEvent(0)

	ev.arm()
	ev.signal()
	if !ev.Signaled() {
		t.Fatal("first signal lost")
	}

	// A fresh arm resets the signaled state; waiters after it block until
	// the next signal.
	ev.arm()
	if ev.Signaled() {
		t.Fatal("arm did not reset signaled state")
	}

	done := make(chan struct{})
	go func() {
		ev.waitHost()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("wait returned before second signal")
	case <-time.After(20 * time.Millisecond):
	}

	ev.signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by second signal")
	}
}

func TestEventTimingRecordsSignalTime(t *testing.T) {
	ev := NewEvent(EventTiming)

	if !ev.SignaledAt().IsZero() {
		t.Error("timing set before signal")
	}
	before := time.Now()
	ev.signal()
	at := ev.SignaledAt()
	if at.IsZero() {
		t.Fatal("timing event has no signal time")
	}
	if at.Before(before) {
		t.Errorf("signal time %v before signal call %v", at, before)
	}

	// Without the flag the timestamp stays zero.
	plain := NewEvent(0)
	plain.signal()
	if !plain.SignaledAt().IsZero() {
		t.Error("untimed event recorded a signal time")
	}
}

func TestDisabledEventIsInert(t *testing.T) {
	ev := NewEvent(EventDisabled)

	ev.arm()
	ev.signal()
	if ev.Signaled() {
		t.Error("disabled event became signaled")
	}

	// waitHost must return immediately rather than block forever.
	done := make(chan struct{})
	go func() {
		ev.waitHost()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled event blocked a waiter")
	}
}

func TestRecordOnSyncQueueSignalsInline(t *testing.T) {
	q := NewSyncQueue(testDevice(), 0)
	ev := q.CreateEvent(0)

	q.Record(ev)
	if !ev.Signaled() {
		t.Error("Record on a sync queue returned before signaling")
	}

	// Wait on an already-signaled event must not block.
	q.Wait(ev)
}

func TestEventOptionsHas(t *testing.T) {
	opts := EventTiming | EventInterprocess
	if !opts.Has(EventTiming) || !opts.Has(EventInterprocess) {
		t.Error("Has missed a set flag")
	}
	if opts.Has(EventDisabled) {
		t.Error("Has reported an unset flag")
	}
}
