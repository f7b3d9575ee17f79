package engine

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// workQueueDepth bounds the FIFO channel feeding a queue's worker. A full
// channel back-pressures submitters instead of growing without bound.
const workQueueDepth = 1024

// AsyncQueue executes submitted work on one background worker goroutine.
// The single worker fed by a FIFO channel gives the intra-queue total
// order the contract requires; separate AsyncQueues run fully in parallel
// with respect to each other.
type AsyncQueue struct {
	queueCore
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex // serializes Submit against Close
	closed bool
}

// NewAsyncQueue creates an asynchronous queue bound to device and starts
// its worker.
func NewAsyncQueue(device *ComputeDevice, ordinal int) *AsyncQueue {
	q := &AsyncQueue{
		queueCore: newQueueCore(device, Async, ordinal),
		tasks:     make(chan func(), workQueueDepth),
		done:      make(chan struct{}),
	}
	go q.worker()
	return q
}

// worker drains the task channel in submission order.
func (q *AsyncQueue) worker() {
	for task := range q.tasks {
		task()
		q.wg.Done()
	}
	close(q.done)
}

// Mode returns Async.
func (q *AsyncQueue) Mode() Mode { return Async }

// Submit enqueues work onto the background channel and returns without
// running it.
func (q *AsyncQueue) Submit(work func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.Wrap(ErrQueueClosed, q.name)
	}
	q.wg.Add(1)
	q.tasks <- work
	return nil
}

// CopyAsync validates the transfer synchronously, then schedules the byte
// copy as queue work.
func (q *AsyncQueue) CopyAsync(dst, src *DeviceMemory) error {
	if dst.ByteCount() != src.ByteCount() {
		return Errorf("CopyAsync", "size mismatch: dst %d bytes, src %d bytes",
			dst.ByteCount(), src.ByteCount())
	}
	return q.Submit(func() {
		copy(dst.Bytes(), src.Bytes())
	})
}

// Record appends the event's signal to the queue's work and returns
// immediately.
func (q *AsyncQueue) Record(ev *Event) *Event { return RecordOn(q, ev) }

// Wait delays the queue's subsequent work until the event fires. The
// calling goroutine is not blocked.
func (q *AsyncQueue) Wait(ev *Event) { WaitOn(q, ev) }

// WaitForCompletion blocks the caller until every previously submitted
// unit of work has finished. Returns immediately when the queue is empty.
func (q *AsyncQueue) WaitForCompletion() {
	q.wg.Wait()
}

// Close drains the queue and stops its worker. Further submissions fail
// with ErrQueueClosed. Called by the platform at teardown.
func (q *AsyncQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.done
	slog.Debug("queue closed", "queue", q.name)
}

var _ Queue = (*AsyncQueue)(nil)
