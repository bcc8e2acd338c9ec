// Package provider bridges endpoints reachable through an
// endpointmanager.Manager to catapult sources: it resolves trace id to
// name mappings and turns incoming native trace frames into
// catapult.Event values a Source can record.
package provider

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/pkg/scalopus/endpointmanager"
	"github.com/ivanders/scalopus/wire"
)

// ScopeTracingProvider queries a peer's TraceMapping endpoint and caches
// the result so repeated ScopeName lookups do not round-trip the
// transport. Call UpdateMapping periodically (or once, for a short-lived
// recording) to keep the cache current as new scopes are registered.
type ScopeTracingProvider struct {
	manager *endpointmanager.Manager
	pid     int

	mu      sync.RWMutex
	mapping map[string]map[string]string // pid -> (trace id -> name)
}

// NewScopeTracingProvider returns a provider querying the peer identified
// by pid through manager.
func NewScopeTracingProvider(manager *endpointmanager.Manager, pid int) *ScopeTracingProvider {
	return &ScopeTracingProvider{manager: manager, pid: pid, mapping: make(map[string]map[string]string)}
}

// UpdateMapping issues a TraceMapping request to the peer and replaces the
// cached mapping with the response.
func (p *ScopeTracingProvider) UpdateMapping(ctx context.Context) error {
	t, ok := p.manager.PeerTransport(p.pid)
	if !ok {
		return fmt.Errorf("provider: not connected to pid %d", p.pid)
	}
	dests := t.Destinations()
	if len(dests) == 0 {
		return fmt.Errorf("provider: peer %d has no open connection", p.pid)
	}
	resp, err := dests[0].Request(ctx, endpoint.TraceMappingName, nil)
	if err != nil {
		return fmt.Errorf("provider: trace_mapping request: %w", err)
	}

	var out wire.TraceMappingResponse
	if err := wire.UnmarshalControl(resp, &out); err != nil {
		return fmt.Errorf("provider: trace_mapping response: %w", err)
	}

	p.mu.Lock()
	p.mapping = out.Mapping
	p.mu.Unlock()
	return nil
}

// ScopeName resolves a trace id reported under producerPID to its
// registered name, using the most recently fetched mapping.
func (p *ScopeTracingProvider) ScopeName(producerPID string, traceID uint32) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	byID, ok := p.mapping[producerPID]
	if !ok {
		return "", false
	}
	name, ok := byID[strconv.FormatUint(uint64(traceID), 10)]
	return name, ok
}

// Mapping returns a snapshot of the full cached mapping.
func (p *ScopeTracingProvider) Mapping() map[string]map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]map[string]string, len(p.mapping))
	for pid, m := range p.mapping {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[pid] = cp
	}
	return out
}
