// Package endpointmanager discovers scalopus peer processes, connects to
// each of them over the transport package, and wires in the endpoints a
// caller registers factories for. It is the polling-discovery analogue of
// the scheduler's periodic dispatch loop, applied to peer connections
// instead of poll jobs.
package endpointmanager

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/internal/sockdiscover"
	"github.com/ivanders/scalopus/transport"
	"github.com/ivanders/scalopus/wire"
)

// DefaultPollInterval is how often Manage is invoked by StartPolling
// unless the caller specifies otherwise.
const DefaultPollInterval = time.Second

// Factory builds one endpoint to attach to a newly connected peer's
// Transport, given that peer's process id. Factories are called once per
// peer, in registration order, immediately after the connection is
// established.
type Factory func(pid int) endpoint.Named

// DiscoverFunc enumerates candidate peer process ids. The default wraps
// sockdiscover.Discover against the real /proc/net/unix; tests inject a
// stub.
type DiscoverFunc func() ([]int, error)

// Peer is one connected remote process: its Transport (this process
// acting as the client side of that connection) and the endpoints the
// registered factories attached to it.
type Peer struct {
	PID       int
	Key       uint64
	Transport *transport.Transport
	endpoints map[string]endpoint.Named
}

// Manager owns the set of connected peers and the factories used to
// populate each new one.
type Manager struct {
	localPID int
	discover DiscoverFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	factories []Factory
	peers     map[int]*Peer

	pollMu sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}

	peersConnected prometheus.Gauge
	requestPending prometheus.Gauge
}

// New returns a Manager for the calling process (localPID excludes the
// process's own advertised socket from discovery results). discover
// defaults to scanning the real /proc/net/unix when nil.
func New(localPID int, discover DiscoverFunc, logger *slog.Logger) *Manager {
	if discover == nil {
		discover = func() ([]int, error) {
			return sockdiscover.Discover(sockdiscover.ReadProcNetUnix)
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Manager{
		localPID: localPID,
		discover: discover,
		logger:   logger,
		peers:    make(map[int]*Peer),
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scalopus_peers_connected",
			Help: "Number of scalopus peer processes currently connected.",
		}),
		requestPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scalopus_requests_pending",
			Help: "Number of in-flight requests awaiting a response across all connected peers.",
		}),
	}
}

// NewForCurrentProcess is a convenience constructor using os.Getpid().
func NewForCurrentProcess(discover DiscoverFunc, logger *slog.Logger) *Manager {
	return New(os.Getpid(), discover, logger)
}

// Collectors returns the prometheus collectors this Manager exposes, for
// registration against a caller-owned prometheus.Registerer.
func (m *Manager) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.peersConnected, m.requestPending}
}

// AddEndpointFactory registers f to run against every peer connected from
// now on. It does not retroactively apply to peers already connected.
func (m *Manager) AddEndpointFactory(f Factory) {
	m.mu.Lock()
	m.factories = append(m.factories, f)
	m.mu.Unlock()
}

// Manage runs one discovery pass: it lists candidate peers, connects to
// any not already known (skipping its own pid), and prunes peers whose
// connection has since closed.
func (m *Manager) Manage(ctx context.Context) error {
	pids, err := m.discover()
	if err != nil {
		return err
	}

	seen := make(map[int]bool, len(pids))
	for _, pid := range pids {
		if pid == m.localPID {
			continue
		}
		seen[pid] = true
		m.connectIfNew(ctx, pid)
	}
	m.pruneDisconnected(seen)
	m.refreshMetrics()
	return nil
}

func (m *Manager) connectIfNew(ctx context.Context, pid int) {
	m.mu.RLock()
	_, known := m.peers[pid]
	m.mu.RUnlock()
	if known {
		return
	}

	t := transport.New(m.localPID, m.logger)
	dest, err := t.Connect(ctx, pid)
	if err != nil {
		m.logger.Debug("endpointmanager: connect failed", "pid", pid, "error", err.Error())
		return
	}

	supported, err := querySupported(ctx, dest)
	if err != nil {
		m.logger.Debug("endpointmanager: introspect failed", "pid", pid, "error", err.Error())
		t.Close()
		return
	}

	m.mu.RLock()
	factories := append([]Factory(nil), m.factories...)
	m.mu.RUnlock()

	eps := make(map[string]endpoint.Named, len(factories))
	for _, f := range factories {
		ep := f(pid)
		required := ep.Name()
		if rn, ok := ep.(endpoint.RemoteNamed); ok {
			required = rn.RemoteName()
		}
		if !supported[required] {
			m.logger.Debug("endpointmanager: peer does not support endpoint, skipping", "pid", pid, "endpoint", required)
			continue
		}
		t.AddEndpoint(ep)
		eps[ep.Name()] = ep
	}

	peer := &Peer{
		PID:       pid,
		Key:       xxhash.Sum64String(peerKey(pid)),
		Transport: t,
		endpoints: eps,
	}

	m.mu.Lock()
	m.peers[pid] = peer
	m.mu.Unlock()

	m.logger.Info("endpointmanager: connected to peer", "pid", pid)
}

// querySupported issues an Introspect request over dest and returns the
// set of endpoint names the peer advertises, so connectIfNew only wires
// factories for endpoints the peer actually offers.
func querySupported(ctx context.Context, dest *transport.Destination) (map[string]bool, error) {
	resp, err := dest.Request(ctx, endpoint.IntrospectName, nil)
	if err != nil {
		return nil, err
	}
	var out wire.IntrospectResponse
	if err := wire.UnmarshalControl(resp, &out); err != nil {
		return nil, err
	}
	supported := make(map[string]bool, len(out.Endpoints))
	for _, name := range out.Endpoints {
		supported[name] = true
	}
	return supported, nil
}

func peerKey(pid int) string {
	return "scalopus-peer:" + itoa(pid)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (m *Manager) pruneDisconnected(seen map[int]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid, peer := range m.peers {
		if !seen[pid] || len(peer.Transport.Destinations()) == 0 {
			peer.Transport.Close()
			delete(m.peers, pid)
		}
	}
}

func (m *Manager) refreshMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.peersConnected.Set(float64(len(m.peers)))
	pending := 0
	for _, peer := range m.peers {
		pending += peer.Transport.PendingRequests()
	}
	m.requestPending.Set(float64(pending))
}

// StartPolling runs Manage every interval (DefaultPollInterval if <= 0)
// in a background goroutine until StopPolling is called or ctx is done.
func (m *Manager) StartPolling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	m.pollMu.Lock()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.pollMu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := m.Manage(ctx); err != nil {
			m.logger.Warn("endpointmanager: discovery pass failed", "error", err.Error())
		}
		for {
			select {
			case <-ticker.C:
				if err := m.Manage(ctx); err != nil {
					m.logger.Warn("endpointmanager: discovery pass failed", "error", err.Error())
				}
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}()
}

// StopPolling halts the polling loop started by StartPolling and waits
// for it to exit.
func (m *Manager) StopPolling() {
	m.pollMu.Lock()
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.pollMu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-doneCh
}

// Peers returns a snapshot of every currently connected peer's pid.
func (m *Manager) Peers() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, len(m.peers))
	for pid := range m.peers {
		out = append(out, pid)
	}
	return out
}

// PeerTransport returns the Transport connected to pid, if known.
func (m *Manager) PeerTransport(pid int) (*transport.Transport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peer, ok := m.peers[pid]
	if !ok {
		return nil, false
	}
	return peer.Transport, true
}

// Find looks up the endpoint registered under name on the peer identified
// by pid and type-asserts it to T, reporting false if the peer, the
// endpoint, or the type assertion does not match.
func Find[T endpoint.Named](m *Manager, pid int, name string) (T, bool) {
	var zero T
	m.mu.RLock()
	peer, ok := m.peers[pid]
	m.mu.RUnlock()
	if !ok {
		return zero, false
	}
	ep, ok := peer.endpoints[name]
	if !ok {
		return zero, false
	}
	t, ok := ep.(T)
	return t, ok
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
