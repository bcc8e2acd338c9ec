package provider

import (
	"context"
	"time"

	"github.com/ivanders/scalopus/catapult"
	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/pkg/scalopus/endpointmanager"
	"github.com/ivanders/scalopus/wire"
)

// requestTimeout bounds a single ProcessInfo round trip so a peer that
// never answers cannot stall FinishInterval indefinitely.
const requestTimeout = 2 * time.Second

// ProcessInfoProvider queries a peer's ProcessInfo endpoint on demand and
// reports the result as a catapult.ProcessInfoLister, so a GeneralSource
// can describe that peer's process and thread names in the final
// document.
type ProcessInfoProvider struct {
	manager *endpointmanager.Manager
	pid     int
}

// NewProcessInfoProvider returns a provider querying the peer identified
// by pid through manager.
func NewProcessInfoProvider(manager *endpointmanager.Manager, pid int) *ProcessInfoProvider {
	return &ProcessInfoProvider{manager: manager, pid: pid}
}

// ListProcessInfo implements catapult.ProcessInfoLister. A peer that is no
// longer connected, or that fails to answer, yields no process info
// rather than an error: metadata is a labeling nicety, not something a
// recording should abort over.
func (p *ProcessInfoProvider) ListProcessInfo() []catapult.ProcessInfo {
	t, ok := p.manager.PeerTransport(p.pid)
	if !ok {
		return nil
	}
	dests := t.Destinations()
	if len(dests) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := dests[0].Request(ctx, endpoint.ProcessInfoName, nil)
	if err != nil {
		return nil
	}

	var out wire.ProcessInfoResponse
	if err := wire.UnmarshalControl(resp, &out); err != nil {
		return nil
	}
	return []catapult.ProcessInfo{{PID: out.PID, Name: out.Name, Threads: out.Threads}}
}
