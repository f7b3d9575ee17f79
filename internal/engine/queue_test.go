package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func testDevice() *ComputeDevice {
	return newHostDevice(0)
}

func TestSyncQueueRunsInline(t *testing.T) {
	q := NewSyncQueue(testDevice(), 0)

	ran := false
	if err := q.Submit(func() { ran = true }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !ran {
		t.Error("Sync queue did not run work before Submit returned")
	}
	q.WaitForCompletion() // must not block
}

func TestAsyncQueuePreservesSubmissionOrder(t *testing.T) {
	q := NewAsyncQueue(testDevice(), 1)
	defer q.Close()

	const n = 1000
	var got []int
	for i := 0; i < n; i++ {
		if err := q.Submit(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	q.WaitForCompletion()

	if len(got) != n {
		t.Fatalf("ran %d tasks, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestWaitForCompletionOnEmptyQueue(t *testing.T) {
	q := NewAsyncQueue(testDevice(), 1)
	defer q.Close()

	done := make(chan struct{})
	go func() {
		q.WaitForCompletion()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForCompletion blocked on an empty queue")
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	q := NewAsyncQueue(testDevice(), 1)
	q.Close()

	err := q.Submit(func() {})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Submit after Close: got %v, want ErrQueueClosed", err)
	}
}

func TestCopyAsyncSizeMismatch(t *testing.T) {
	d := testDevice()
	q := NewSyncQueue(d, 0)

	a, err := d.Allocate(64, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer a.Release()
	b, err := d.Allocate(128, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer b.Release()

	if err := q.CopyAsync(b, a); err == nil {
		t.Error("CopyAsync with mismatched sizes succeeded")
	}
}

func TestCopyAsyncTransfersBytes(t *testing.T) {
	d := testDevice()
	q := NewAsyncQueue(d, 1)
	defer q.Close()

	src, _ := d.Allocate(16, nil)
	defer src.Release()
	dst, _ := d.Allocate(16, nil)
	defer dst.Release()

	for i := range src.Bytes() {
		src.Bytes()[i] = byte(i)
	}
	if err := q.CopyAsync(dst, src); err != nil {
		t.Fatalf("CopyAsync: %v", err)
	}
	q.WaitForCompletion()

	for i, b := range dst.Bytes() {
		if b != byte(i) {
			t.Fatalf("dst[%d] = %d, want %d", i, b, i)
		}
	}
}

// TestEventHandoffOrdersCrossQueueWork drives a producer/consumer pair of
// async queues through an event handshake: the consumer must always
// observe the producer's completed write.
func TestEventHandoffOrdersCrossQueueWork(t *testing.T) {
	d := testDevice()
	producer := NewAsyncQueue(d, 1)
	defer producer.Close()
	consumer := NewAsyncQueue(d, 2)
	defer consumer.Close()

	const iters = 500
	var shared atomic.Int64
	var misses atomic.Int64

	ev := NewEvent(0)
	for i := 1; i <= iters; i++ {
		if err := producer.Submit(func() { shared.Store(int64(i)) }); err != nil {
			t.Fatalf("producer Submit: %v", err)
		}
		producer.Record(ev)
		consumer.Wait(ev)
		if err := consumer.Submit(func() {
			if shared.Load() != int64(i) {
				misses.Add(1)
			}
		}); err != nil {
			t.Fatalf("consumer Submit: %v", err)
		}
		consumer.WaitForCompletion()
	}
	if n := misses.Load(); n != 0 {
		t.Errorf("consumer observed %d stale values", n)
	}
}

// TestConcurrentQueuesIndependent checks that many queues make progress in
// parallel without shared-state interference.
func TestConcurrentQueuesIndependent(t *testing.T) {
	d := testDevice()
	const queues = 8
	const perQueue = 200

	var g errgroup.Group
	for i := 0; i < queues; i++ {
		q := NewAsyncQueue(d, i+1)
		g.Go(func() error {
			defer q.Close()
			var count int
			for j := 0; j < perQueue; j++ {
				if err := q.Submit(func() { count++ }); err != nil {
					return err
				}
			}
			q.WaitForCompletion()
			if count != perQueue {
				t.Errorf("queue %d ran %d tasks, want %d", i, count, perQueue)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("queue group: %v", err)
	}
}
