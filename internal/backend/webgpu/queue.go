package webgpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fathom-ml/fathom/internal/engine"
)

// Queue is the accelerator implementation of the engine.Queue contract.
// Ordering comes from the same single-worker channel discipline as the
// CPU queues; the WebGPU command queue is only ever driven from inside
// that ordered work, so GPU submissions inherit the queue's total order.
type Queue struct {
	id      uuid.UUID
	name    string
	backend *Backend
	device  *engine.ComputeDevice
	mode    engine.Mode

	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// newQueue creates one accelerator queue and, in Async mode, starts its
// worker.
func newQueue(b *Backend, d *engine.ComputeDevice, ordinal int, mode engine.Mode) *Queue {
	q := &Queue{
		id:      uuid.New(),
		name:    fmt.Sprintf("%s.q%d.%s", d.Name(), ordinal, mode),
		backend: b,
		device:  d,
		mode:    mode,
	}
	if mode == engine.Async {
		q.tasks = make(chan func(), 1024)
		q.done = make(chan struct{})
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	for task := range q.tasks {
		task()
		q.wg.Done()
	}
	close(q.done)
}

// ID returns the queue's identity.
func (q *Queue) ID() uuid.UUID { return q.id }

// Name returns the queue's log name.
func (q *Queue) Name() string { return q.name }

// Device returns the owning device index.
func (q *Queue) Device() int { return q.device.Index() }

// Mode returns the queue's execution mode.
func (q *Queue) Mode() engine.Mode { return q.mode }

// MemoryKind returns Discrete.
func (q *Queue) MemoryKind() engine.MemoryKind { return q.device.MemoryKind() }

// Submit runs work inline in Sync mode or enqueues it in Async mode.
func (q *Queue) Submit(work func()) error {
	if q.mode == engine.Sync {
		work()
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.Wrap(engine.ErrQueueClosed, q.name)
	}
	q.wg.Add(1)
	q.tasks <- work
	return nil
}

// Allocate creates a GPU storage buffer with a host staging area and
// charges it against the device's capacity.
func (q *Queue) Allocate(byteCount int) (*engine.DeviceMemory, error) {
	handle := q.backend.createStorageBuffer(byteCount)
	mem, err := q.device.Allocate(byteCount, handle)
	if err != nil {
		handle.Release()
		return nil, err
	}
	return mem, nil
}

// CreateEvent allocates an event; it is not yet armed.
func (q *Queue) CreateEvent(opts engine.EventOptions) *engine.Event {
	return engine.NewEvent(opts)
}

// Record appends the event's signal to the queue's work.
func (q *Queue) Record(ev *engine.Event) *engine.Event { return engine.RecordOn(q, ev) }

// Wait orders the queue's subsequent work after the event's signal.
func (q *Queue) Wait(ev *engine.Event) { engine.WaitOn(q, ev) }

// WaitForCompletion blocks the caller until the queue drains.
func (q *Queue) WaitForCompletion() {
	if q.mode == engine.Async {
		q.wg.Wait()
	}
}

// EnsureRead schedules a device-to-staging readback when the GPU holds
// bytes the host has not seen. No-op for unified operands.
func (q *Queue) EnsureRead(mem *engine.DeviceMemory) error {
	handle, ok := mem.Handle().(*deviceBuffer)
	if !ok {
		return nil
	}
	return q.Submit(func() {
		if !handle.deviceDirty {
			return
		}
		if err := q.backend.download(handle, mem.Bytes()); err != nil {
			// Async work must stay failure-free; preconditions are checked
			// before submission, so a readback failure here is a device
			// loss. Surface it in the log rather than corrupting results.
			slog.Error("webgpu readback failed", "queue", q.name, "err", err)
			return
		}
		handle.deviceDirty = false
	})
}

// EnsureReadWrite readies the staging bytes for host mutation: any device
// copy is pulled down first, then the staging area is marked newest.
func (q *Queue) EnsureReadWrite(mem *engine.DeviceMemory) error {
	handle, ok := mem.Handle().(*deviceBuffer)
	if !ok {
		return nil
	}
	if err := q.EnsureRead(mem); err != nil {
		return err
	}
	return q.Submit(func() {
		handle.hostDirty = true
	})
}

// CopyAsync transfers bytes between allocations, marshalling between
// memory kinds. All four kind combinations are scheduled as queue work,
// so on an Async accelerator queue the copy completes out of line.
func (q *Queue) CopyAsync(dst, src *engine.DeviceMemory) error {
	if dst.ByteCount() != src.ByteCount() {
		return engine.Errorf("CopyAsync", "size mismatch: dst %d bytes, src %d bytes",
			dst.ByteCount(), src.ByteCount())
	}
	srcBuf, _ := src.Handle().(*deviceBuffer)
	dstBuf, _ := dst.Handle().(*deviceBuffer)
	return q.Submit(func() {
		switch {
		case srcBuf == nil && dstBuf == nil:
			copy(dst.Bytes(), src.Bytes())
		case srcBuf == nil:
			// Host to device: stage and upload.
			copy(dst.Bytes(), src.Bytes())
			q.backend.upload(dstBuf, dst.Bytes())
			dstBuf.hostDirty = false
			dstBuf.deviceDirty = false
		case dstBuf == nil:
			// Device to host: pull the freshest copy down first.
			q.syncDown(src, srcBuf)
			copy(dst.Bytes(), src.Bytes())
		default:
			// Device to device: flush pending host writes, then copy on
			// the GPU without a host round trip.
			q.syncUp(src, srcBuf)
			q.backend.copyOnDevice(dstBuf, srcBuf)
			dstBuf.deviceDirty = true
			dstBuf.hostDirty = false
		}
	})
}

// syncDown makes the staging bytes current. Runs inside queue work.
func (q *Queue) syncDown(mem *engine.DeviceMemory, handle *deviceBuffer) {
	if !handle.deviceDirty {
		return
	}
	if err := q.backend.download(handle, mem.Bytes()); err != nil {
		slog.Error("webgpu readback failed", "queue", q.name, "err", err)
		return
	}
	handle.deviceDirty = false
}

// syncUp makes the GPU buffer current. Runs inside queue work.
func (q *Queue) syncUp(mem *engine.DeviceMemory, handle *deviceBuffer) {
	if !handle.hostDirty {
		return
	}
	q.backend.upload(handle, mem.Bytes())
	handle.hostDirty = false
}

// Close drains the queue and stops its worker.
func (q *Queue) Close() {
	if q.mode == engine.Sync {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.done
}

var _ engine.Queue = (*Queue)(nil)
