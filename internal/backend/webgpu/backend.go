// Package webgpu implements the discrete-accelerator queue behind the
// engine.Queue contract. Uses go-webgpu (github.com/go-webgpu/webgpu) for
// zero-CGO WebGPU bindings.
//
// The backend manages discrete device memory (WebGPU storage buffers) and
// the host<->device staging protocol; elementwise kernels themselves run
// over the staged host bytes, submitted in queue order, so any kernel
// library can replace that path without changing the queue contract.
package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/fathom-ml/fathom/internal/engine"
)

// accelMemoryBytes is the assumed capacity of an adapter. WebGPU exposes
// buffer-size limits but no total-memory query.
const accelMemoryBytes = 4 << 30

// Backend owns the WebGPU instance, adapter, device, and command queue
// shared by every accelerator queue on one registered device.
type Backend struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	adapterInfo *wgpu.AdapterInfoGo
}

// New initializes WebGPU and returns a backend ready to register with a
// platform. Returns an error when no compatible adapter is present.
func New() (backend *Backend, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, errors.Wrap(instanceErr, "webgpu: failed to create instance")
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	return &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: adapterInfo,
	}, nil
}

// IsAvailable checks whether a WebGPU adapter can be initialized, for
// graceful fallback to the CPU queues.
func IsAvailable() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return false
	}
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name returns the adapter's device name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil && b.adapterInfo.Device != "" {
		return b.adapterInfo.Device
	}
	return "webgpu"
}

// Register adds this adapter to the platform as a Discrete device and
// creates its queues. Queue 0 executes inline; the rest run on background
// workers, matching the platform's CPU queue convention.
func (b *Backend) Register(p *engine.Platform) (*engine.ComputeDevice, error) {
	return p.AddDevice(b.Name(), engine.Discrete, accelMemoryBytes, 0,
		func(d *engine.ComputeDevice, ordinal int) (engine.Queue, error) {
			mode := engine.Async
			if ordinal == 0 {
				mode = engine.Sync
			}
			return newQueue(b, d, ordinal, mode), nil
		})
}

// Release frees the WebGPU resources. Queues created from this backend
// must be drained first.
func (b *Backend) Release() {
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
