package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ivanders/scalopus/catapult"
	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/pkg/scalopus/endpointmanager"
	"github.com/ivanders/scalopus/pkg/scalopus/provider"
	"github.com/ivanders/scalopus/wire"
)

// Recorder is the client side of scalopus: it discovers Session
// processes, connects to each, and records their native trace broadcasts
// into per-peer catapult sources. FinishRecording returns one peer's
// recording as a catapult.Document.
type Recorder struct {
	cfg     Config
	logger  *slog.Logger
	manager *endpointmanager.Manager

	mu        sync.Mutex
	providers map[int]*recorderPeer
}

type recorderPeer struct {
	scopes *provider.ScopeTracingProvider
	native *provider.NativeTraceProvider
	meta   *catapult.GeneralSource
}

// NewRecorder constructs a Recorder for the current process. discover is
// passed through to the underlying endpointmanager.Manager; nil uses the
// real /proc/net/unix scan.
func NewRecorder(cfg Config, localPID int, discover endpointmanager.DiscoverFunc, logger *slog.Logger) *Recorder {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	r := &Recorder{
		cfg:       cfg,
		logger:    logger,
		manager:   endpointmanager.New(localPID, discover, logger),
		providers: make(map[int]*recorderPeer),
	}
	r.manager.AddEndpointFactory(func(pid int) endpoint.Named { return endpoint.NewIntrospect() })
	r.manager.AddEndpointFactory(r.nativeReceiverFactory)
	return r
}

// nativeReceiverFactory is registered once and invoked by the
// endpointmanager for every newly connected peer, regardless of how many
// peers end up connected: it looks up (creating if needed) the
// recorderPeer for the just-connected pid and wires a fresh
// NativeTraceReceiver straight into that peer's source.
func (r *Recorder) nativeReceiverFactory(pid int) endpoint.Named {
	peer := r.peerFor(pid)
	recv := endpoint.NewNativeTraceReceiver()
	recv.SetSink(func(_ wire.PeerID, frame *wire.NativeFrame) {
		peer.native.MakeSource().Ingest(frame)
	})
	return recv
}

// peerFor returns the recorderPeer for pid, creating it on first use.
func (r *Recorder) peerFor(pid int) *recorderPeer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[pid]; ok {
		return p
	}

	scopes := provider.NewScopeTracingProvider(r.manager, pid)
	native := provider.NewNativeTraceProvider(uint64(pid), r.cfg.Category, func(producerID int64, traceID uint32) (string, bool) {
		return scopes.ScopeName(fmt.Sprintf("%d", pid), traceID)
	})
	info := provider.NewProcessInfoProvider(r.manager, pid)
	peer := &recorderPeer{scopes: scopes, native: native, meta: catapult.NewGeneralSource(info)}
	r.providers[pid] = peer
	return peer
}

// Start begins the endpointmanager's discovery polling loop.
func (r *Recorder) Start(ctx context.Context) {
	r.manager.StartPolling(ctx, r.cfg.DiscoveryInterval)
}

// Stop halts discovery polling. Connections to peers that are already
// connected are not closed.
func (r *Recorder) Stop() {
	r.manager.StopPolling()
}

// StartRecording begins a fresh recording interval for pid, fetching its
// current trace id to name mapping first. pid must already be connected
// (see Peers).
func (r *Recorder) StartRecording(ctx context.Context, pid int) error {
	if !contains(r.manager.Peers(), pid) {
		return fmt.Errorf("session: recorder is not connected to pid %d", pid)
	}
	peer := r.peerFor(pid)
	if err := peer.scopes.UpdateMapping(ctx); err != nil {
		return err
	}
	peer.native.MakeSource().StartInterval()
	return nil
}

// FinishRecording returns the events recorded for pid since
// StartRecording as a Catapult document, with process_name/thread_name metadata
// events from the peer's current ProcessInfo prepended to the recorded
// scope/mark/counter events.
func (r *Recorder) FinishRecording(pid int) (catapult.Document, error) {
	r.mu.Lock()
	peer, ok := r.providers[pid]
	r.mu.Unlock()
	if !ok {
		return catapult.Document{}, fmt.Errorf("session: recorder is not recording pid %d", pid)
	}
	doc := peer.native.MakeSource().FinishInterval()
	doc.TraceEvents = append(peer.meta.FinishInterval(), doc.TraceEvents...)
	return doc, nil
}

// Peers returns the pids of every process the recorder is currently
// connected to.
func (r *Recorder) Peers() []int { return r.manager.Peers() }

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
