package engine

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// defaultHostMemory stands in when the OS total-memory query is
// unavailable.
const defaultHostMemory = 16 << 30

// ComputeDevice is a compute/memory resource owning an ordered set of
// queues. Device 0 is always the host CPU; higher indices are accelerators
// or extra CPU devices.
type ComputeDevice struct {
	index    int
	name     string
	kind     MemoryKind
	capacity uint64
	cores    int
	features []string

	queues    []Queue
	allocated atomic.Int64
}

// newHostDevice describes the host CPU.
func newHostDevice(index int) *ComputeDevice {
	return &ComputeDevice{
		index:    index,
		name:     fmt.Sprintf("cpu:%d", index),
		kind:     Unified,
		capacity: hostMemoryBytes(),
		cores:    runtime.NumCPU(),
		features: hostFeatures(),
	}
}

// hostFeatures reports the SIMD feature set of the host CPU.
func hostFeatures() []string {
	var f []string
	if cpu.X86.HasAVX2 {
		f = append(f, "avx2")
	}
	if cpu.X86.HasAVX512F {
		f = append(f, "avx512f")
	}
	if cpu.X86.HasFMA {
		f = append(f, "fma")
	}
	if cpu.ARM64.HasASIMD {
		f = append(f, "neon")
	}
	return f
}

// Index returns the device's position in the platform's device table.
func (d *ComputeDevice) Index() int { return d.index }

// Name returns a human-readable device name.
func (d *ComputeDevice) Name() string { return d.name }

// MemoryKind returns the kind of memory the device allocates.
func (d *ComputeDevice) MemoryKind() MemoryKind { return d.kind }

// Capacity returns the device's total memory in bytes.
func (d *ComputeDevice) Capacity() uint64 { return d.capacity }

// Cores returns the device's compute unit count.
func (d *ComputeDevice) Cores() int { return d.cores }

// Features returns the device's capability strings (e.g. "avx2").
func (d *ComputeDevice) Features() []string { return d.features }

// Queues returns the device's queues in creation order.
func (d *ComputeDevice) Queues() []Queue { return d.queues }

// Queue returns the i-th queue on this device.
func (d *ComputeDevice) Queue(i int) (Queue, error) {
	if i < 0 || i >= len(d.queues) {
		return nil, errors.Wrapf(ErrInvalidDevice, "device %d has %d queues, want %d",
			d.index, len(d.queues), i)
	}
	return d.queues[i], nil
}

// AllocatedBytes returns the bytes currently allocated on the device.
func (d *ComputeDevice) AllocatedBytes() int64 { return d.allocated.Load() }

// Allocate reserves byteCount bytes against the device's capacity and
// wraps them in a reference-counted DeviceMemory. handle may be nil for
// Unified devices.
func (d *ComputeDevice) Allocate(byteCount int, handle DeviceBuffer) (*DeviceMemory, error) {
	if byteCount < 0 {
		return nil, Errorf("Allocate", "negative byte count %d", byteCount)
	}
	reserved := alignUp(byteCount, memoryAlign)
	if used := d.allocated.Add(int64(reserved)); uint64(used) > d.capacity {
		d.allocated.Add(-int64(reserved))
		return nil, errors.WithStack(&AllocationError{
			Device:    d.index,
			ByteCount: byteCount,
			Capacity:  d.capacity,
		})
	}
	m := newDeviceMemory(d.index, d.kind, byteCount, handle)
	m.onRelease = func() { d.allocated.Add(-int64(reserved)) }
	return m, nil
}
