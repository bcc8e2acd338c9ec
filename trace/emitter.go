package trace

import (
	"sync/atomic"
	"time"

	"github.com/ivanders/scalopus/ringbuffer"
)

// MarkLevel distinguishes the three mark scopes.
type MarkLevel int

const (
	MarkGlobal MarkLevel = iota
	MarkProcess
	MarkThread
)

// Emitter is bound to one Producer and the shared Configurator; its
// methods are the hot-path calls instrumented code invokes. Every method
// checks process-enabled && producer-enabled with plain atomic loads and
// returns immediately when either is false — no allocation, no ring
// access, in the disabled case.
type Emitter struct {
	cfg      *Configurator
	producer *Producer
	enabled  *atomic.Bool
}

// NewEmitter binds an Emitter to producer, registering its enable flag
// with cfg (seeded from cfg's current new-producer default).
func NewEmitter(cfg *Configurator, producer *Producer) *Emitter {
	return &Emitter{
		cfg:      cfg,
		producer: producer,
		enabled:  cfg.Register(producer.ID),
	}
}

func (e *Emitter) active() bool {
	return e.cfg.ProcessState() && e.enabled.Load()
}

func now() int64 { return time.Now().UnixNano() }

// ScopeEntry emits a scope-entry event for id.
func (e *Emitter) ScopeEntry(id uint32) {
	if !e.active() {
		return
	}
	e.producer.Ring.Push(newEvent(id, ringbuffer.KindScopeEntry, 0))
}

// ScopeExit emits a scope-exit event for id.
func (e *Emitter) ScopeExit(id uint32) {
	if !e.active() {
		return
	}
	e.producer.Ring.Push(newEvent(id, ringbuffer.KindScopeExit, 0))
}

// Mark emits a mark event for id at the given level.
func (e *Emitter) Mark(id uint32, level MarkLevel) {
	if !e.active() {
		return
	}
	k := ringbuffer.KindMarkGlobal
	switch level {
	case MarkProcess:
		k = ringbuffer.KindMarkProcess
	case MarkThread:
		k = ringbuffer.KindMarkThread
	}
	e.producer.Ring.Push(newEvent(id, k, 0))
}

// Count emits a counter event for id carrying value.
func (e *Emitter) Count(id uint32, value int64) {
	if !e.active() {
		return
	}
	e.producer.Ring.Push(newEvent(id, ringbuffer.KindCounter, value))
}

func newEvent(id uint32, k ringbuffer.Kind, value int64) ringbuffer.Event {
	return ringbuffer.Event{
		TimestampNanos: now(),
		TraceID:        id,
		Kind:           k,
		Value:          value,
	}
}

// Close retires the emitter's producer: it moves the ring buffer to the
// collector's orphan list and forgets the producer's enable flag. Call
// this when the traced goroutine is about to exit.
func (e *Emitter) Close(collector *Collector) {
	collector.Release(e.producer)
	e.cfg.Forget(e.producer.ID)
}
