// Copyright 2025 Fathom ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the discrete-accelerator backend of the Fathom
// runtime, built on cross-platform WebGPU without CGO.
//
// Example:
//
//	p, _ := engine.NewPlatform(engine.DefaultConfig())
//	defer p.Shutdown()
//	if webgpu.IsAvailable() {
//	    b, err := webgpu.New()
//	    if err == nil {
//	        dev, _ := b.Register(p)
//	        q, _ := dev.Queue(0)
//	        p.Use(q)
//	    }
//	}
package webgpu

import (
	internalwebgpu "github.com/fathom-ml/fathom/internal/backend/webgpu"
)

// Backend owns the WebGPU instance, adapter, device, and command queue.
type Backend = internalwebgpu.Backend

// Queue is the accelerator queue implementation.
type Queue = internalwebgpu.Queue

// New initializes WebGPU and returns a backend ready to register with a
// platform. Returns an error when no compatible adapter is present.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks whether a WebGPU adapter can be initialized, for
// graceful fallback to the CPU queues.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
