package engine

import (
	"testing"

	"github.com/pkg/errors"
)

func TestNewPlatformCreatesHostDevice(t *testing.T) {
	p, err := NewPlatform(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	defer p.Shutdown()

	if len(p.Devices()) != 1 {
		t.Fatalf("got %d devices, want 1", len(p.Devices()))
	}
	host := p.Devices()[0]
	if host.MemoryKind() != Unified {
		t.Errorf("host memory kind = %v, want Unified", host.MemoryKind())
	}
	if got := len(host.Queues()); got != DefaultConfig().QueuesPerDevice {
		t.Errorf("host has %d queues, want %d", got, DefaultConfig().QueuesPerDevice)
	}

	q0, err := host.Queue(0)
	if err != nil {
		t.Fatalf("Queue(0): %v", err)
	}
	if q0.Mode() != Sync {
		t.Errorf("queue 0 mode = %v, want Sync", q0.Mode())
	}
	q1, err := host.Queue(1)
	if err != nil {
		t.Fatalf("Queue(1): %v", err)
	}
	if q1.Mode() != Async {
		t.Errorf("queue 1 mode = %v, want Async", q1.Mode())
	}

	if p.Current() != q0 {
		t.Error("current queue is not host queue 0")
	}
}

func TestPlatformUseSwitchesCurrentQueue(t *testing.T) {
	p, err := NewPlatform(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	defer p.Shutdown()

	host := p.Devices()[0]
	q1, _ := host.Queue(1)

	prev := p.Use(q1)
	if prev.Mode() != Sync {
		t.Error("Use did not return the previous selection")
	}
	if p.Current() != q1 {
		t.Error("Use did not switch the current queue")
	}
	p.Use(prev)
	if p.Current() != prev {
		t.Error("restoring the previous queue failed")
	}
}

func TestPlatformSeedReproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42

	draw := func() []float64 {
		p, err := NewPlatform(cfg)
		if err != nil {
			t.Fatalf("NewPlatform: %v", err)
		}
		defer p.Shutdown()
		out := make([]float64, 8)
		for i := range out {
			out[i] = p.Random().Float64()
		}
		return out
	}

	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs across equally-seeded platforms: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestAddDeviceAndAllocationLimit(t *testing.T) {
	p, err := NewPlatform(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	defer p.Shutdown()

	d, err := p.AddDevice("tiny", Unified, 1024, 1,
		func(d *ComputeDevice, ordinal int) (Queue, error) {
			return NewSyncQueue(d, ordinal), nil
		})
	if err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if d.Index() != 1 {
		t.Errorf("new device index = %d, want 1", d.Index())
	}

	q, _ := d.Queue(0)
	mem, err := q.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate within capacity: %v", err)
	}

	// The remaining capacity cannot satisfy another 1024 bytes.
	_, err = q.Allocate(1024)
	var allocErr *AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("over-capacity Allocate: got %v, want *AllocationError", err)
	}
	if allocErr.Device != d.Index() {
		t.Errorf("AllocationError.Device = %d, want %d", allocErr.Device, d.Index())
	}

	// Releasing returns the reserved bytes.
	mem.Release()
	mem2, err := q.Allocate(1024)
	if err != nil {
		t.Fatalf("Allocate after release: %v", err)
	}
	mem2.Release()
}

func TestSynchronizeDrainsAllQueues(t *testing.T) {
	p, err := NewPlatform(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	defer p.Shutdown()

	host := p.Devices()[0]
	q1, _ := host.Queue(1)

	ran := false
	if err := q1.Submit(func() { ran = true }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Synchronize()
	if !ran {
		t.Error("Synchronize returned with queued work pending")
	}
}

func TestShutdownClosesQueues(t *testing.T) {
	p, err := NewPlatform(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	host := p.Devices()[0]
	q1, _ := host.Queue(1)

	p.Shutdown()
	if err := q1.Submit(func() {}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Submit after Shutdown: got %v, want ErrQueueClosed", err)
	}

	// Shutdown is idempotent.
	p.Shutdown()
}

func TestDeviceMemoryRefCounting(t *testing.T) {
	d := testDevice()
	mem, err := d.Allocate(128, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	before := d.AllocatedBytes()

	mem.Retain()
	mem.Release()
	if d.AllocatedBytes() != before {
		t.Error("capacity returned while a reference was live")
	}
	mem.Release()
	if d.AllocatedBytes() != 0 {
		t.Errorf("allocated %d bytes after final release, want 0", d.AllocatedBytes())
	}
}
