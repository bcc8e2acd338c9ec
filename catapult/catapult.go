// Package catapult converts scalopus trace events into the Chrome
// Catapult ("Trace Event Format") JSON documents consumed by
// chrome://tracing and Perfetto.
package catapult

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// eventsIngested counts every event ever passed to AddData across all
// Source instances in the process, labeled by Catapult phase, so a
// caller wiring this package's metrics into a registry can watch
// recording throughput per event kind.
var eventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "scalopus_source_interval_events_total",
	Help: "Total number of catapult events recorded by a Source, by phase.",
}, []string{"phase"})

// MetricsCollector returns the prometheus collector backing this
// package's event counter, for registration against a caller-owned
// prometheus.Registerer.
func MetricsCollector() prometheus.Collector { return eventsIngested }

// Phase is the single-letter Catapult event phase.
type Phase string

const (
	PhaseBegin    Phase = "B"
	PhaseEnd      Phase = "E"
	PhaseInstant  Phase = "i"
	PhaseCounter  Phase = "C"
	PhaseMetadata Phase = "M"
)

// InstantScope is the "s" field on instant events: global, process, or
// thread visibility in the viewer.
type InstantScope string

const (
	ScopeGlobal  InstantScope = "g"
	ScopeProcess InstantScope = "p"
	ScopeThread  InstantScope = "t"
)

// Event is one row of the Catapult trace. Not every field applies to
// every Phase; MarshalCatapult below omits the ones that do not.
type Event struct {
	Name      string
	Category  string
	Phase     Phase
	Timestamp int64 // microseconds, matching Catapult's "ts" units
	PID       uint64
	TID       uint64
	Scope     InstantScope
	Args      map[string]any
}

// catapultEventJSON mirrors the wire shape of one Catapult event; field
// names and omitempty behavior match the format's documented contract.
type catapultEventJSON struct {
	Name     string         `json:"name,omitempty"`
	Category string         `json:"cat,omitempty"`
	Phase    string         `json:"ph"`
	Ts       int64          `json:"ts"`
	PID      uint64         `json:"pid"`
	TID      uint64         `json:"tid"`
	Scope    string         `json:"s,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// MarshalCatapult renders e as the JSON object Catapult expects.
func (e Event) MarshalCatapult() ([]byte, error) {
	return json.Marshal(catapultEventJSON{
		Name:     e.Name,
		Category: e.Category,
		Phase:    string(e.Phase),
		Ts:       e.Timestamp,
		PID:      e.PID,
		TID:      e.TID,
		Scope:    string(e.Scope),
		Args:     e.Args,
	})
}

// Document is a complete Catapult trace: a flat list of events.
type Document struct {
	TraceEvents []Event `json:"-"`
}

// MarshalJSON renders the document in Catapult's JSON Object Format:
// {"traceEvents": [...]}, sorted by timestamp (ties broken by original
// insertion order since sort.SliceStable is used).
func (d Document) MarshalJSON() ([]byte, error) {
	events := append([]Event(nil), d.TraceEvents...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })

	raw := make([]json.RawMessage, len(events))
	for i, e := range events {
		b, err := e.MarshalCatapult()
		if err != nil {
			return nil, fmt.Errorf("catapult: marshal event %d: %w", i, err)
		}
		raw[i] = b
	}
	return json.Marshal(struct {
		TraceEvents []json.RawMessage `json:"traceEvents"`
	}{TraceEvents: raw})
}

// Source accumulates events and produces the final catapult Document on
// demand. It is the Go analogue of the original design's interval-based
// recording session: StartInterval clears the window, AddData feeds
// events into it, and FinishInterval (or Events, for a snapshot) reads
// the result. Source keeps no recording state: AddData appends whether or
// not an interval has been started, and nothing but StartInterval clears
// what it has appended.
type Source struct {
	mu     sync.Mutex
	events []Event
}

// NewSource returns an empty Source.
func NewSource() *Source { return &Source{} }

// StartInterval clears any previously recorded events, beginning a fresh
// recording window.
func (s *Source) StartInterval() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// AddData appends one event to the current recording window.
func (s *Source) AddData(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	eventsIngested.WithLabelValues(string(e.Phase)).Inc()
}

// StopInterval only takes and releases the Source's lock. It does not end
// the window: AddData keeps appending after it, and the recorded events
// stay in place until the next StartInterval.
func (s *Source) StopInterval() {
	s.mu.Lock()
	defer s.mu.Unlock()
}

// FinishInterval returns the events recorded since the last StartInterval
// as a complete Document, applying the counter fill-forward pass (see
// fillForwardCounters) so every counter series has a value at every
// timestamp another series reports one.
func (s *Source) FinishInterval() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append([]Event(nil), s.events...)
	fillForwardCounters(events)
	return Document{TraceEvents: events}
}

// Events returns a snapshot of the events recorded so far without ending
// the interval.
func (s *Source) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
