package trace

import (
	"sync"
	"sync/atomic"

	"github.com/ivanders/scalopus/ringbuffer"
)

// DefaultRingCapacity is the default per-producer ring buffer size.
const DefaultRingCapacity = 10_000

// Producer is one traced goroutine's identity plus its ring buffer. The
// collector hands these out; callers hold on to the pointer for the
// lifetime of the traced goroutine and call Collector.Release when it
// exits.
type Producer struct {
	ID   int64
	Ring *ringbuffer.Ring
}

// Collector owns every active producer's ring buffer plus a list of
// orphaned buffers — producers that have been Released but whose buffer
// may still hold undrained events. It is the process-singleton analogue
// of the original design's CollectorState.
type Collector struct {
	capacity int
	nextID   atomic.Int64

	mu      sync.Mutex
	active  map[int64]*Producer
	orphans []*Producer
}

// NewCollector creates a Collector whose producers get ring buffers of
// the given capacity. capacity <= 0 uses DefaultRingCapacity.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Collector{
		capacity: capacity,
		active:   make(map[int64]*Producer),
	}
}

// Acquire creates and registers a new Producer. Each call produces a
// distinct, never-reused id — the caller must invoke Acquire exactly once
// per traced goroutine and keep the returned *Producer for that
// goroutine's lifetime (there is no implicit per-goroutine caching,
// unlike the original per-OS-thread design: Go has no stable goroutine
// identity to key a cache on, so the embedding code is responsible for
// stashing the handle, e.g. in the goroutine closure or a context value).
func (c *Collector) Acquire() *Producer {
	id := c.nextID.Add(1)
	p := &Producer{ID: id, Ring: ringbuffer.New(c.capacity)}
	c.mu.Lock()
	c.active[id] = p
	c.mu.Unlock()
	return p
}

// Release moves p from active into the orphan list. Call this when the
// traced goroutine that owns p is about to exit — it is the explicit
// substitute for the original's automatic thread-exit hook.
func (c *Collector) Release(p *Producer) {
	c.mu.Lock()
	delete(c.active, p.ID)
	c.orphans = append(c.orphans, p)
	c.mu.Unlock()
}

// ActiveProducers returns a snapshot of the currently active producers.
func (c *Collector) ActiveProducers() map[int64]*Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]*Producer, len(c.active))
	for id, p := range c.active {
		out[id] = p
	}
	return out
}

// DrainOrphans returns the current orphan list and clears it. Every
// orphan appears in exactly one DrainOrphans call.
func (c *Collector) DrainOrphans() []*Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.orphans
	c.orphans = nil
	return out
}

var defaultCollector = NewCollector(DefaultRingCapacity)

// DefaultCollector returns the process-local singleton Collector.
func DefaultCollector() *Collector { return defaultCollector }
