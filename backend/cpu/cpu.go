// Copyright 2025 Fathom ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the host CPU queues of the Fathom runtime.
//
// The platform creates these automatically for device 0: queue 0 is a
// SyncQueue executing inline, the rest are AsyncQueues each running one
// background worker. The constructors are exported for callers that
// attach extra CPU devices or build queues outside a platform (tests,
// benchmarks).
//
// Example:
//
//	p, _ := engine.NewPlatform(engine.DefaultConfig())
//	defer p.Shutdown()
//	host, _ := p.Device(0)
//	q0, _ := host.Queue(0) // synchronous
//	q1, _ := host.Queue(1) // asynchronous
package cpu

import (
	"github.com/fathom-ml/fathom/internal/engine"
)

// SyncQueue executes every operation inline on the calling goroutine.
type SyncQueue = engine.SyncQueue

// AsyncQueue executes submitted work on one background worker goroutine.
type AsyncQueue = engine.AsyncQueue

// NewSyncQueue creates a synchronous queue bound to device.
func NewSyncQueue(device *engine.ComputeDevice, ordinal int) *SyncQueue {
	return engine.NewSyncQueue(device, ordinal)
}

// NewAsyncQueue creates an asynchronous queue bound to device and starts
// its worker.
func NewAsyncQueue(device *engine.ComputeDevice, ordinal int) *AsyncQueue {
	return engine.NewAsyncQueue(device, ordinal)
}
