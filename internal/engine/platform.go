package engine

import (
	"log/slog"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Platform is the process-wide registry of devices and the "current queue"
// selection used by call sites that take no explicit queue. It owns the
// lifecycle of the whole device set: queues are created here and torn down
// by Shutdown.
//
// Replace-ambient-state note: there is no package-level current queue.
// Callers hold a *Platform explicitly (or thread one through their own
// context) and ask it for Current().
type Platform struct {
	cfg     Config
	devices []*ComputeDevice

	mu      sync.Mutex
	current Queue
	rng     *rand.Rand
	closed  bool
}

// lockedSource makes a rand.Source safe for concurrent tensor creation.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// NewPlatform initializes the device set from cfg. Device 0 is the host
// CPU; its queue 0 is synchronous and the remaining queues asynchronous.
// The current queue starts as device 0, queue 0.
func NewPlatform(cfg Config) (*Platform, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.slogLevel()
	slog.SetLogLoggerLevel(level)

	p := &Platform{
		cfg: cfg,
		//nolint:gosec // G404: reproducible runs need a seeded math/rand
		rng: rand.New(&lockedSource{src: rand.NewSource(cfg.Seed).(rand.Source64)}),
	}

	host := newHostDevice(0)
	p.attachQueues(host)
	p.devices = append(p.devices, host)
	p.current = host.queues[0]

	slog.Debug("platform initialized",
		"devices", len(p.devices),
		"queues_per_device", cfg.QueuesPerDevice,
		"seed", cfg.Seed)
	return p, nil
}

// attachQueues creates the configured queue set on a CPU-kind device.
func (p *Platform) attachQueues(d *ComputeDevice) {
	d.queues = append(d.queues, NewSyncQueue(d, 0))
	for i := 1; i < p.cfg.QueuesPerDevice; i++ {
		d.queues = append(d.queues, NewAsyncQueue(d, i))
	}
}

// QueueFactory builds one queue bound to a registered device. Backends
// (e.g. the WebGPU accelerator) supply one per AddDevice call.
type QueueFactory func(d *ComputeDevice, ordinal int) (Queue, error)

// AddDevice registers an accelerator (or extra CPU) device after platform
// init and creates its queues through the supplied factory. Devices get
// the next free index; index 0 stays the host CPU.
func (p *Platform) AddDevice(name string, kind MemoryKind, capacity uint64, cores int, factory QueueFactory) (*ComputeDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.WithStack(ErrQueueClosed)
	}
	d := &ComputeDevice{
		index:    len(p.devices),
		name:     name,
		kind:     kind,
		capacity: capacity,
		cores:    cores,
	}
	for i := 0; i < p.cfg.QueuesPerDevice; i++ {
		q, err := factory(d, i)
		if err != nil {
			return nil, errors.Wrapf(err, "creating queue %d on %s", i, name)
		}
		d.queues = append(d.queues, q)
	}
	p.devices = append(p.devices, d)
	slog.Info("device registered", "device", name, "index", d.index, "kind", kind.String())
	return d, nil
}

// Config returns the configuration the platform was initialized with.
func (p *Platform) Config() Config { return p.cfg }

// Devices returns the ordered device table. Index 0 is the host CPU.
func (p *Platform) Devices() []*ComputeDevice { return p.devices }

// Device returns the device at index i.
func (p *Platform) Device(i int) (*ComputeDevice, error) {
	if i < 0 || i >= len(p.devices) {
		return nil, errors.Wrapf(ErrInvalidDevice, "index %d of %d devices", i, len(p.devices))
	}
	return p.devices[i], nil
}

// Current returns the current queue selection.
func (p *Platform) Current() Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Use selects q as the current queue and returns the previous selection so
// callers can restore it.
func (p *Platform) Use(q Queue) Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.current
	p.current = q
	return prev
}

// Random returns the platform's seeded random source. Safe for concurrent
// use.
func (p *Platform) Random() *rand.Rand { return p.rng }

// Seed returns the configured random seed.
func (p *Platform) Seed() int64 { return p.cfg.Seed }

// Synchronize blocks until every queue on every device has drained.
func (p *Platform) Synchronize() {
	var g errgroup.Group
	for _, d := range p.devices {
		for _, q := range d.queues {
			g.Go(func() error {
				q.WaitForCompletion()
				return nil
			})
		}
	}
	_ = g.Wait() // queue drains cannot fail
}

// Shutdown drains and closes every queue. The platform is unusable
// afterwards; further submissions fail with ErrQueueClosed.
func (p *Platform) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.Synchronize()
	for _, d := range p.devices {
		for _, q := range d.queues {
			if c, ok := q.(interface{ Close() }); ok {
				c.Close()
			}
		}
	}
	slog.Debug("platform shut down")
}
