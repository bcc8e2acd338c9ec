package endpoint

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ivanders/scalopus/trace"
	"github.com/ivanders/scalopus/wire"
)

// TraceMappingName is the fixed registration name of the TraceMapping
// endpoint.
const TraceMappingName = "scope_tracing"

// TraceMapping answers requests with every trace id to name pair known to
// a process's Tracker, keyed by the serving process's own pid so a client
// aggregating mappings from several peers can keep them apart.
type TraceMapping struct {
	tracker *trace.Tracker
	pid     string

	mu    sync.Mutex
	extra map[string]map[string]string
}

// NewTraceMapping returns a TraceMapping endpoint serving tracker's current
// and future registrations, reported under pid.
func NewTraceMapping(tracker *trace.Tracker, pid int) *TraceMapping {
	return &TraceMapping{
		tracker: tracker,
		pid:     strconv.Itoa(pid),
		extra:   make(map[string]map[string]string),
	}
}

func (t *TraceMapping) Name() string { return TraceMappingName }

func (t *TraceMapping) HandleRequest(_ context.Context, _ []byte) ([]byte, error) {
	snap := t.tracker.Snapshot()
	own := make(map[string]string, len(snap))
	for id, name := range snap {
		own[strconv.FormatUint(uint64(id), 10)] = name
	}

	t.mu.Lock()
	mapping := make(map[string]map[string]string, len(t.extra)+1)
	for pid, m := range t.extra {
		mapping[pid] = m
	}
	t.mu.Unlock()
	mapping[t.pid] = own

	resp := wire.TraceMappingResponse{Mapping: mapping}
	data, err := wire.MarshalControl(resp)
	if err != nil {
		return nil, fmt.Errorf("trace_mapping: marshal: %w", err)
	}
	return data, nil
}

// MergeRemote folds a remote peer's reported mapping in, so a process that
// relays requests on behalf of others (a session aggregating endpoints
// across several transports) can still answer with the full picture.
func (t *TraceMapping) MergeRemote(pid string, mapping map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extra[pid] = mapping
}
