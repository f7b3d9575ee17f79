package engine

import (
	"sync"
	"sync/atomic"
)

// MemoryKind describes where an allocation lives relative to the host.
type MemoryKind int8

const (
	// Unified memory is directly addressable by the host. CPU devices and
	// integrated accelerators use this kind; coherency staging is a no-op.
	Unified MemoryKind = iota
	// Discrete memory lives on an accelerator and must be staged through
	// queue work before the host (or another device) can observe it.
	Discrete
)

// String returns a human-readable memory kind name.
func (k MemoryKind) String() string {
	switch k {
	case Unified:
		return "Unified"
	case Discrete:
		return "Discrete"
	default:
		return "Unknown"
	}
}

// memoryAlign is the native word alignment for allocations. Matches cache
// line size so typed views never straddle an unaligned boundary.
const memoryAlign = 64

// DeviceBuffer is an opaque handle to a discrete backend allocation
// (for example a GPU buffer). Unified memory has no handle.
type DeviceBuffer interface {
	// ByteCount returns the allocation size.
	ByteCount() int
	// Release frees the backend allocation. Called once, when the last
	// DeviceMemory reference drops.
	Release()
}

// DeviceMemory is an opaque, reference-counted allocation on one device.
// Every StridedView over the same allocation shares one DeviceMemory; the
// allocation is released when the last reference drops. The size is fixed
// at allocation and never changes.
type DeviceMemory struct {
	device    int
	kind      MemoryKind
	bytes     []byte       // host bytes; staging area when kind == Discrete
	handle    DeviceBuffer // nil for Unified
	refCount  atomic.Int32
	mu        sync.Mutex // guards release of bytes/handle
	onRelease func()     // set by the allocator to return capacity
}

// newDeviceMemory wraps an aligned host buffer with refCount = 1.
func newDeviceMemory(device int, kind MemoryKind, byteCount int, handle DeviceBuffer) *DeviceMemory {
	m := &DeviceMemory{
		device: device,
		kind:   kind,
		bytes:  make([]byte, alignUp(byteCount, memoryAlign))[:byteCount],
		handle: handle,
	}
	m.refCount.Store(1)
	return m
}

// alignUp rounds n up to the next multiple of align (a power of two).
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Device returns the owning device index.
func (m *DeviceMemory) Device() int { return m.device }

// Kind returns the memory kind declared at allocation.
func (m *DeviceMemory) Kind() MemoryKind { return m.kind }

// ByteCount returns the fixed allocation size in bytes.
func (m *DeviceMemory) ByteCount() int { return len(m.bytes) }

// Bytes returns the host-visible byte buffer. For Discrete memory this is
// the staging area; callers must have ensured coherency through the owning
// queue first.
func (m *DeviceMemory) Bytes() []byte { return m.bytes }

// Handle returns the backend allocation handle, or nil for Unified memory.
func (m *DeviceMemory) Handle() DeviceBuffer { return m.handle }

// Retain increments the reference count. Each StridedView sharing the
// allocation holds one reference.
func (m *DeviceMemory) Retain() *DeviceMemory {
	m.refCount.Add(1)
	return m
}

// Release decrements the reference count and frees the allocation when it
// reaches zero.
func (m *DeviceMemory) Release() {
	if m.refCount.Add(-1) != 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes = nil
	if m.handle != nil {
		m.handle.Release()
		m.handle = nil
	}
	if m.onRelease != nil {
		m.onRelease()
		m.onRelease = nil
	}
}
