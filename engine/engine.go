// Copyright 2025 Fathom ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine provides the public API for the Fathom execution core:
// platforms, devices, queues, events, and device memory.
//
// A Platform owns the device table and the current-queue selection. Each
// device exposes one or more Queues; work submitted to one queue executes
// in submission order, and Events are the only ordering mechanism between
// queues.
//
// Example:
//
//	cfg, _ := engine.LoadConfig()
//	p, _ := engine.NewPlatform(cfg)
//	defer p.Shutdown()
//	q := p.Current()
//	mem, _ := q.Allocate(1024)
//	defer mem.Release()
package engine

import (
	"github.com/fathom-ml/fathom/internal/engine"
)

// Platform is the process-wide registry of devices and queues.
type Platform = engine.Platform

// ComputeDevice is one compute/memory resource owning an ordered set of
// queues. Device 0 is always the host CPU.
type ComputeDevice = engine.ComputeDevice

// QueueFactory builds one queue bound to a registered device.
type QueueFactory = engine.QueueFactory

// Queue is the compute-backend contract: an ordered, device-bound
// submission channel.
type Queue = engine.Queue

// SyncQueue executes every operation inline on the calling goroutine.
type SyncQueue = engine.SyncQueue

// AsyncQueue executes submitted work on one background worker goroutine.
type AsyncQueue = engine.AsyncQueue

// Mode selects how a queue executes submitted work.
type Mode = engine.Mode

// Queue execution modes.
const (
	Sync  Mode = engine.Sync
	Async Mode = engine.Async
)

// Event is the cross-queue synchronization token.
type Event = engine.Event

// EventOptions configure an Event at creation time.
type EventOptions = engine.EventOptions

// Event option flags.
const (
	EventTiming       EventOptions = engine.EventTiming
	EventInterprocess EventOptions = engine.EventInterprocess
	EventDisabled     EventOptions = engine.EventDisabled
)

// DeviceMemory is an opaque, reference-counted allocation on one device.
type DeviceMemory = engine.DeviceMemory

// DeviceBuffer is an opaque handle to a discrete backend allocation.
type DeviceBuffer = engine.DeviceBuffer

// MemoryKind describes where an allocation lives relative to the host.
type MemoryKind = engine.MemoryKind

// Memory kinds.
const (
	Unified  MemoryKind = engine.Unified
	Discrete MemoryKind = engine.Discrete
)

// Config is the platform configuration surface.
type Config = engine.Config

// AllocationError reports an allocation exceeding device capacity.
type AllocationError = engine.AllocationError

// PreconditionError reports an operation rejected before any work was
// queued.
type PreconditionError = engine.PreconditionError

// Sentinel errors.
var (
	ErrUnimplementedLayout = engine.ErrUnimplementedLayout
	ErrQueueClosed         = engine.ErrQueueClosed
	ErrInvalidDevice       = engine.ErrInvalidDevice
)

// NewPlatform initializes the device set from cfg. Device 0 is the host
// CPU; its queue 0 is synchronous and the remaining queues asynchronous.
func NewPlatform(cfg Config) (*Platform, error) {
	return engine.NewPlatform(cfg)
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config { return engine.DefaultConfig() }

// LoadConfig builds a Config from defaults, an optional YAML file named by
// FATHOM_CONFIG, and FATHOM_* environment overrides, in that order.
func LoadConfig() (Config, error) { return engine.LoadConfig() }

// NewEvent creates an unsignaled, not-yet-armed event.
func NewEvent(opts EventOptions) *Event { return engine.NewEvent(opts) }
