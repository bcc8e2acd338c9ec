// Package trace implements the process-local tracing plane: the enable
// flags checked on every emit, the trace-id → name registry, the
// per-producer ring buffer collector, and the emitter fast paths
// themselves.
package trace

import (
	"sync"
	"sync/atomic"
)

// Configurator holds the process-wide and per-producer enable flags
// consulted on the emit fast path. All three flags default to true.
//
// There is no goroutine-local storage in Go, so "per-thread" from the
// original design becomes "per traced producer": whoever acquires a
// Producer from a Collector (see collector.go) also registers its state
// here under the Producer's numeric id, and must call Forget when the
// producer retires. This is the explicit substitution for the C++
// thread-exit-hook pattern.
type Configurator struct {
	mu                 sync.RWMutex
	processEnabled     atomic.Bool
	newProducerDefault atomic.Bool
	producers          map[int64]*atomic.Bool
}

// NewConfigurator returns a Configurator with all flags defaulting to true.
func NewConfigurator() *Configurator {
	c := &Configurator{
		producers: make(map[int64]*atomic.Bool),
	}
	c.processEnabled.Store(true)
	c.newProducerDefault.Store(true)
	return c
}

// SetProcessState sets the process-wide enable flag and returns its
// previous value.
func (c *Configurator) SetProcessState(enabled bool) bool {
	return c.processEnabled.Swap(enabled)
}

// ProcessState reports the current process-wide enable flag.
func (c *Configurator) ProcessState() bool {
	return c.processEnabled.Load()
}

// SetNewProducerDefault sets the enable value assigned to producers that
// register for the first time, and returns its previous value.
func (c *Configurator) SetNewProducerDefault(enabled bool) bool {
	return c.newProducerDefault.Swap(enabled)
}

// Register creates (if absent) the enable flag for producer id, seeded
// from the current new-producer default, and returns a handle the emit
// path can poll without taking the Configurator's lock.
func (c *Configurator) Register(id int64) *atomic.Bool {
	c.mu.RLock()
	if f, ok := c.producers[id]; ok {
		c.mu.RUnlock()
		return f
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.producers[id]; ok {
		return f
	}
	f := &atomic.Bool{}
	f.Store(c.newProducerDefault.Load())
	c.producers[id] = f
	return f
}

// SetProducerState sets the enable flag for producer id if it is known,
// and reports whether it was known.
func (c *Configurator) SetProducerState(id int64, enabled bool) (previous bool, known bool) {
	c.mu.RLock()
	f, ok := c.producers[id]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	return f.Swap(enabled), true
}

// ProducerState reports the current enable flag for producer id.
func (c *Configurator) ProducerState(id int64) (enabled bool, known bool) {
	c.mu.RLock()
	f, ok := c.producers[id]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	return f.Load(), true
}

// Forget removes the enable flag for producer id. Call this when the
// producer's ring buffer is retired (the goroutine exit analogue).
func (c *Configurator) Forget(id int64) {
	c.mu.Lock()
	delete(c.producers, id)
	c.mu.Unlock()
}

// ProducerMap returns a snapshot of every known producer id to its
// current enable flag.
func (c *Configurator) ProducerMap() map[int64]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]bool, len(c.producers))
	for id, f := range c.producers {
		out[id] = f.Load()
	}
	return out
}

var defaultConfigurator = NewConfigurator()

// DefaultConfigurator returns the process-local singleton Configurator.
func DefaultConfigurator() *Configurator { return defaultConfigurator }
