package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventOptions configure an Event at creation time.
type EventOptions uint8

const (
	// EventTiming records the wall-clock time of the actual signal (not of
	// submission) so producers can be profiled.
	EventTiming EventOptions = 1 << iota
	// EventInterprocess marks the event as shareable across process
	// boundaries. The flag is carried for backend use; the host engine
	// treats it as metadata only.
	EventInterprocess
	// EventDisabled creates an inert event: Record and Wait become no-ops.
	// Useful to stub out synchronization when benchmarking queue overhead.
	EventDisabled
)

// Has reports whether all bits of o are set.
func (e EventOptions) Has(o EventOptions) bool { return e&o == o }

// Event is the synchronization token signaled when the work queued ahead
// of its Record call has completed. Events are the only cross-queue
// ordering mechanism the engine provides.
//
// An Event may be reused: a fresh Record re-arms it. Waiting on an event
// that is never recorded blocks forever; that deadlock is a documented
// caller responsibility, not something the engine detects.
type Event struct {
	id   uuid.UUID
	opts EventOptions

	mu         sync.Mutex
	armed      chan struct{} // closed on signal; replaced on re-arm
	signaled   bool
	signaledAt time.Time
}

// NewEvent creates an unsignaled, not-yet-armed event.
func NewEvent(opts EventOptions) *Event {
	return &Event{
		id:    uuid.New(),
		opts:  opts,
		armed: make(chan struct{}),
	}
}

// ID returns the event's identity.
func (e *Event) ID() uuid.UUID { return e.id }

// Options returns the option flags the event was created with.
func (e *Event) Options() EventOptions { return e.opts }

// Signaled reports whether the event is currently in the signaled state.
func (e *Event) Signaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// SignaledAt returns the wall-clock signal time. Zero unless the event was
// created with EventTiming and has been signaled since its last arm.
func (e *Event) SignaledAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaledAt
}

// arm resets the event to unsignaled ahead of a fresh Record.
func (e *Event) arm() {
	if e.opts.Has(EventDisabled) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		e.signaled = false
		e.signaledAt = time.Time{}
		e.armed = make(chan struct{})
	}
}

// signal marks the event signaled and wakes every waiter. The timestamp is
// taken here, at the moment of actual completion.
func (e *Event) signal() {
	if e.opts.Has(EventDisabled) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		return
	}
	e.signaled = true
	if e.opts.Has(EventTiming) {
		e.signaledAt = time.Now()
	}
	close(e.armed)
}

// waitHost blocks the calling goroutine until the event is signaled.
func (e *Event) waitHost() {
	if e.opts.Has(EventDisabled) {
		return
	}
	e.mu.Lock()
	ch := e.armed
	e.mu.Unlock()
	<-ch
}
