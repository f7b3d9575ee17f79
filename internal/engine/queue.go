// Package engine implements the execution core: device memory, events,
// device queues, and the platform registry that owns them.
//
// A Queue is an ordered, device-bound submission channel. All work
// submitted to one queue executes in submission order; no order exists
// between two queues except through an explicit Event handoff (the
// producer Records on its queue, the consumer Waits on the recorded
// event). Two queues touching overlapping memory without that handshake
// is a data race the engine does not detect.
package engine

import (
	"github.com/google/uuid"
)

// Mode selects how a queue executes submitted work.
type Mode int8

const (
	// Sync queues execute every operation inline on the calling goroutine
	// before returning. A Sync queue never creates concurrency and is
	// always already complete.
	Sync Mode = iota
	// Async queues enqueue work onto a background worker; submissions
	// return before the work runs.
	Async
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	if m == Sync {
		return "Sync"
	}
	return "Async"
}

// Queue is the compute-backend contract. Any implementation satisfying it
// (synchronous CPU, asynchronous CPU, discrete accelerator) is
// interchangeable to the rest of the system.
//
// Semantics every implementation must honor:
//   - Intra-queue total order: work executes in submission order.
//   - Record appends a "signal this event" unit of work; on an Async
//     queue it returns immediately, on a Sync queue the event is signaled
//     before Record returns.
//   - Wait appends a "block until signaled" unit of work; it delays the
//     queue's own subsequent work on an Async queue, and blocks the
//     calling goroutine on a Sync queue.
//   - WaitForCompletion blocks the caller until everything previously
//     submitted has finished; on an empty queue it returns immediately.
type Queue interface {
	// ID returns the queue's identity.
	ID() uuid.UUID
	// Name returns a human-readable queue name for logs.
	Name() string
	// Device returns the owning device index.
	Device() int
	// Mode returns Sync or Async.
	Mode() Mode
	// MemoryKind returns the kind of memory the queue allocates,
	// inherited from its device.
	MemoryKind() MemoryKind

	// Allocate requests byteCount bytes aligned to the native word size.
	// Fails with *AllocationError when the device reports insufficient
	// storage; the failure is terminal for this request, never retried.
	Allocate(byteCount int) (*DeviceMemory, error)
	// CopyAsync transfers bytes between two allocations, marshalling
	// between memory kinds when the devices differ. On an Async queue the
	// copy is scheduled as queue work.
	CopyAsync(dst, src *DeviceMemory) error
	// CreateEvent allocates an event; it is not yet armed.
	CreateEvent(opts EventOptions) *Event
	// Record arms the event against the work queued so far and returns
	// the same event to allow chaining.
	Record(ev *Event) *Event
	// Wait orders the queue's subsequent work after the event's signal.
	Wait(ev *Event)
	// WaitForCompletion blocks the caller until the queue drains.
	WaitForCompletion()
	// Submit enqueues an opaque unit of work. The dispatcher uses this
	// for deferred element loops.
	Submit(work func()) error

	// EnsureRead makes the allocation's contents visible to host-side
	// reads issued from this queue's work. No-op for Unified memory.
	EnsureRead(mem *DeviceMemory) error
	// EnsureReadWrite makes the allocation coherent for read-modify-write
	// access from this queue's work. No-op for Unified memory.
	EnsureReadWrite(mem *DeviceMemory) error
}

// Shared default behavior. Implementations with an ordered Submit get
// Record/Wait/CopyAsync for free through these helpers.

// RecordOn re-arms ev and appends its signal to the queue's work.
func RecordOn(q Queue, ev *Event) *Event {
	ev.arm()
	// Submission failure means the platform is tearing down; signal the
	// event anyway so no waiter is stranded.
	if err := q.Submit(ev.signal); err != nil {
		ev.signal()
	}
	return ev
}

// WaitOn orders the queue's subsequent work after ev's signal.
func WaitOn(q Queue, ev *Event) {
	if err := q.Submit(ev.waitHost); err != nil {
		ev.waitHost()
	}
}

// CopyBytes performs the host-side byte transfer between two allocations.
func CopyBytes(op string, dst, src *DeviceMemory) error {
	if dst.ByteCount() != src.ByteCount() {
		return Errorf(op, "size mismatch: dst %d bytes, src %d bytes",
			dst.ByteCount(), src.ByteCount())
	}
	copy(dst.Bytes(), src.Bytes())
	return nil
}
