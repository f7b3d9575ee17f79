package webgpu

import (
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// deviceBuffer is the engine.DeviceBuffer handle for one GPU storage
// buffer, plus the coherency flags the staging protocol tracks. The flags
// are touched only from the owning queue's ordered work, so queue order is
// their synchronization.
type deviceBuffer struct {
	buf  *wgpu.Buffer
	size int

	hostDirty   bool // staging bytes newer than the GPU buffer
	deviceDirty bool // GPU buffer newer than the staging bytes
}

// ByteCount returns the allocation size.
func (d *deviceBuffer) ByteCount() int { return d.size }

// Release frees the GPU buffer.
func (d *deviceBuffer) Release() {
	if d.buf != nil {
		d.buf.Release()
		d.buf = nil
	}
}

// createStorageBuffer allocates an unmapped GPU buffer usable as a copy
// source and destination.
func (b *Backend) createStorageBuffer(size int) *deviceBuffer {
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(size),
	})
	return &deviceBuffer{buf: buf, size: size}
}

// upload pushes host bytes into the GPU buffer through a mapped-at-creation
// staging source.
func (b *Backend) upload(dst *deviceBuffer, data []byte) {
	size := uint64(len(data))
	src := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer src.Release()

	mappedPtr := src.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mapped, data)
	src.Unmap()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, dst.buf, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)
}

// download reads the GPU buffer back into dst through a map-read staging
// buffer. Storage buffers cannot be mapped directly.
func (b *Backend) download(src *deviceBuffer, dst []byte) error {
	size := uint64(len(dst))
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.buf, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return errors.Wrap(err, "webgpu: mapping staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(dst, mapped)
	staging.Unmap()
	return nil
}

// copyOnDevice transfers bytes between two GPU buffers without touching
// the host.
func (b *Backend) copyOnDevice(dst, src *deviceBuffer) {
	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.buf, 0, dst.buf, 0, uint64(src.size))
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)
}
