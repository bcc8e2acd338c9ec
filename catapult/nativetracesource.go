package catapult

import (
	"strings"

	"github.com/ivanders/scalopus/wire"
)

// NameResolver maps a producer id and trace id pair to the human-readable
// scope name registered for it. NativeTraceSource calls this once per
// incoming event; callers typically back it with a
// provider.ScopeTracingProvider.
type NameResolver func(producerID int64, traceID uint32) (string, bool)

// NativeTraceSource is a Source specialized for converting
// wire.NativeFrame batches (as delivered by an
// endpoint.NativeTraceReceiver) into Catapult scope/mark/counter events
// for one process, identified by pid.
type NativeTraceSource struct {
	*Source
	pid      uint64
	resolve  NameResolver
	category string
}

// NewNativeTraceSource returns a NativeTraceSource labeling every
// produced event with pid and category, resolving trace ids to names via
// resolve.
func NewNativeTraceSource(pid uint64, category string, resolve NameResolver) *NativeTraceSource {
	return &NativeTraceSource{Source: NewSource(), pid: pid, resolve: resolve, category: category}
}

// Ingest converts every event in frame into Catapult events and appends
// them to the current recording interval. Events whose trace id cannot be
// resolved to a name are recorded with the numeric id as a fallback name
// rather than dropped, so gaps in mapping data don't lose data silently.
func (g *NativeTraceSource) Ingest(frame *wire.NativeFrame) {
	for _, e := range frame.Events {
		name, ok := g.resolve(frame.ProducerID, e.TraceID)
		if !ok {
			name = fallbackName(e.TraceID)
		}
		ts := e.TimestampNanos / 1000 // Catapult timestamps are microseconds.
		tid := uint64(frame.ProducerID)

		switch e.Kind {
		case kindScopeEntry:
			g.AddData(Event{Name: name, Category: g.category, Phase: PhaseBegin, Timestamp: ts, PID: g.pid, TID: tid})
		case kindScopeExit:
			g.AddData(Event{Name: name, Category: g.category, Phase: PhaseEnd, Timestamp: ts, PID: g.pid, TID: tid})
		case kindMarkGlobal:
			g.AddData(Event{Name: name, Category: g.category, Phase: PhaseInstant, Timestamp: ts, PID: g.pid, TID: tid, Scope: ScopeGlobal})
		case kindMarkProcess:
			g.AddData(Event{Name: name, Category: g.category, Phase: PhaseInstant, Timestamp: ts, PID: g.pid, TID: tid, Scope: ScopeProcess})
		case kindMarkThread:
			g.AddData(Event{Name: name, Category: g.category, Phase: PhaseInstant, Timestamp: ts, PID: g.pid, TID: tid, Scope: ScopeThread})
		case kindCounter:
			// "base_series" becomes event name "base" with args key
			// "series"; a name without an underscore is used for both.
			series, key := name, name
			if i := strings.LastIndexByte(name, '_'); i > 0 && i < len(name)-1 {
				series, key = name[:i], name[i+1:]
			}
			g.AddData(Event{Name: series, Category: g.category, Phase: PhaseCounter, Timestamp: ts, PID: g.pid, TID: tid,
				Args: map[string]any{key: e.Value}})
		}
	}
}

// ringbufferKind mirrors ringbuffer.Kind's values without importing the
// ringbuffer package: NativeTraceSource only ever sees the wire-encoded
// byte form of a Kind, carried in wire.NativeEvent.Kind.
type ringbufferKind = uint8

const (
	kindScopeEntry  ringbufferKind = 1
	kindScopeExit   ringbufferKind = 2
	kindMarkGlobal  ringbufferKind = 3
	kindMarkProcess ringbufferKind = 4
	kindMarkThread  ringbufferKind = 5
	kindCounter     ringbufferKind = 6
)

func fallbackName(traceID uint32) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 10)
	buf[0], buf[1] = '0', 'x'
	for i := 0; i < 8; i++ {
		shift := uint(28 - i*4)
		buf[2+i] = hextable[(traceID>>shift)&0xf]
	}
	return string(buf)
}
