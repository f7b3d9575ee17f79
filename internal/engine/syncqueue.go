package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// queueCore carries the identity and device binding shared by the CPU
// queue implementations.
type queueCore struct {
	id     uuid.UUID
	name   string
	device *ComputeDevice
}

func newQueueCore(device *ComputeDevice, mode Mode, ordinal int) queueCore {
	return queueCore{
		id:     uuid.New(),
		name:   fmt.Sprintf("%s.q%d.%s", device.Name(), ordinal, mode),
		device: device,
	}
}

// ID returns the queue's identity.
func (c *queueCore) ID() uuid.UUID { return c.id }

// Name returns the queue's log name.
func (c *queueCore) Name() string { return c.name }

// Device returns the owning device index.
func (c *queueCore) Device() int { return c.device.Index() }

// MemoryKind returns the device's memory kind.
func (c *queueCore) MemoryKind() MemoryKind { return c.device.MemoryKind() }

// Allocate reserves device memory against the owning device's capacity.
func (c *queueCore) Allocate(byteCount int) (*DeviceMemory, error) {
	return c.device.Allocate(byteCount, nil)
}

// CreateEvent allocates an event; it is not yet armed.
func (c *queueCore) CreateEvent(opts EventOptions) *Event {
	return NewEvent(opts)
}

// EnsureRead is a no-op: unified memory is always host-coherent.
func (c *queueCore) EnsureRead(*DeviceMemory) error { return nil }

// EnsureReadWrite is a no-op: unified memory is always host-coherent.
func (c *queueCore) EnsureReadWrite(*DeviceMemory) error { return nil }

// SyncQueue executes every operation inline on the calling goroutine. It
// never creates concurrency and is always already complete, so
// WaitForCompletion is a no-op.
type SyncQueue struct {
	queueCore
}

// NewSyncQueue creates a synchronous queue bound to device.
func NewSyncQueue(device *ComputeDevice, ordinal int) *SyncQueue {
	return &SyncQueue{queueCore: newQueueCore(device, Sync, ordinal)}
}

// Mode returns Sync.
func (q *SyncQueue) Mode() Mode { return Sync }

// Submit runs work inline before returning.
func (q *SyncQueue) Submit(work func()) error {
	work()
	return nil
}

// CopyAsync performs the byte transfer immediately.
func (q *SyncQueue) CopyAsync(dst, src *DeviceMemory) error {
	return CopyBytes("CopyAsync", dst, src)
}

// Record signals the event synchronously before returning.
func (q *SyncQueue) Record(ev *Event) *Event { return RecordOn(q, ev) }

// Wait blocks the calling goroutine until the event is signaled.
func (q *SyncQueue) Wait(ev *Event) { WaitOn(q, ev) }

// WaitForCompletion is a no-op: a Sync queue has no pending work.
func (q *SyncQueue) WaitForCompletion() {}

var _ Queue = (*SyncQueue)(nil)
