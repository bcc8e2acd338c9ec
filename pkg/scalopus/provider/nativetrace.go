package provider

import (
	"github.com/ivanders/scalopus/catapult"
	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/wire"
)

// NativeTraceProvider receives broadcast NativeFrame batches from one
// connected peer (via an endpoint.NativeTraceReceiver attached by
// ReceiveEndpointFactory) and feeds them into a catapult.NativeTraceSource
// it owns, so a recording session only has to drive StartInterval /
// FinishInterval on the source returned by MakeSource rather than
// juggling the receiver and source separately.
type NativeTraceProvider struct {
	source *catapult.NativeTraceSource
}

// NewNativeTraceProvider returns a provider recording under pid/category,
// resolving trace ids through resolve (typically a
// ScopeTracingProvider.ScopeName).
func NewNativeTraceProvider(pid uint64, category string, resolve catapult.NameResolver) *NativeTraceProvider {
	return &NativeTraceProvider{source: catapult.NewNativeTraceSource(pid, category, resolve)}
}

// MakeSource returns the catapult.NativeTraceSource this provider feeds.
// The caller drives StartInterval/FinishInterval on it directly.
func (p *NativeTraceProvider) MakeSource() *catapult.NativeTraceSource { return p.source }

// NewReceiver returns a NativeTraceReceiver forwarding every decoded
// frame into this provider's source. Used directly by callers managing a
// single peer connection; a multi-peer caller like Recorder instead
// builds one receiver per discovered pid and routes into the matching
// provider itself.
func (p *NativeTraceProvider) NewReceiver() endpoint.Named {
	r := endpoint.NewNativeTraceReceiver()
	r.SetSink(func(_ wire.PeerID, frame *wire.NativeFrame) {
		p.source.Ingest(frame)
	})
	return r
}
