// Package transport implements the scalopus IPC transport: a Transport
// listens on (or connects to) an abstract Unix domain socket named after
// a process id, and dispatches length-prefixed wire.Message frames to
// registered endpoint.Named handlers across however many peer
// connections (Destinations) are open at a time.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/wire"
)

// ErrUnknownEndpoint names the unknown-endpoint error kind. No function in
// this package returns it: a request for an endpoint the peer does not
// have is answered with an empty payload.
var ErrUnknownEndpoint = fmt.Errorf("transport: unknown endpoint")

// ErrNotConnected is returned when an operation addresses a peer id that
// has no open Destination.
var ErrNotConnected = fmt.Errorf("transport: not connected")

// Transport owns zero or one listening socket and any number of peer
// Destinations, server or client side. A process typically creates one
// Transport, calls Serve to accept incoming connections from tooling, and
// Connect to reach other traced processes it discovers.
type Transport struct {
	pid    int
	logger *slog.Logger

	mu        sync.RWMutex
	listener  net.Listener
	endpoints map[string]endpoint.Named
	dests     map[wire.PeerID]*Destination

	nextPeerID atomic.Uint64

	// OnConnectionChange, if set, is invoked whenever a Destination is
	// added or removed. connected is true on add, false on removal. It
	// must not block; callers needing to do real work should hand off to
	// their own goroutine.
	OnConnectionChange func(peer wire.PeerID, connected bool)
}

// New returns a Transport identified by pid (used to compute Address).
// logger defaults to a no-op sink when nil.
func New(pid int, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Transport{
		pid:       pid,
		logger:    logger,
		endpoints: make(map[string]endpoint.Named),
		dests:     make(map[wire.PeerID]*Destination),
	}
}

// Address returns the abstract socket address this Transport listens on.
func (t *Transport) Address() string { return Address(t.pid) }

// AddEndpoint registers ep under ep.Name(). Registering a second endpoint
// under a name already in use replaces the first.
func (t *Transport) AddEndpoint(ep endpoint.Named) {
	t.mu.Lock()
	t.endpoints[ep.Name()] = ep
	t.mu.Unlock()
}

// Endpoints returns the names of every locally registered endpoint.
func (t *Transport) Endpoints() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.endpoints))
	for name := range t.endpoints {
		out = append(out, name)
	}
	return out
}

// GetEndpoint returns the endpoint registered under name, if any.
func (t *Transport) GetEndpoint(name string) (endpoint.Named, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep, ok := t.endpoints[name]
	return ep, ok
}

// Serve starts listening on this Transport's abstract socket address and
// accepts connections in a background goroutine until Close is called.
func (t *Transport) Serve() error {
	l, err := net.Listen("unix", t.Address())
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", t.Address(), err)
	}
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()

	go t.acceptLoop(l)
	return nil
}

func (t *Transport) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		t.addDestination(conn)
	}
}

// Connect dials the abstract socket advertised by the process with the
// given pid and returns the resulting Destination.
func (t *Transport) Connect(ctx context.Context, pid int) (*Destination, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", Address(pid))
	if err != nil {
		return nil, fmt.Errorf("transport: dial pid %d: %w", pid, err)
	}
	return t.addDestination(conn), nil
}

func (t *Transport) addDestination(conn net.Conn) *Destination {
	id := wire.PeerID(t.nextPeerID.Add(1))
	dest := newDestination(id, conn, t)

	t.mu.Lock()
	t.dests[id] = dest
	t.mu.Unlock()

	dest.start()

	if t.OnConnectionChange != nil {
		t.OnConnectionChange(id, true)
	}
	return dest
}

func (t *Transport) removeDestination(id wire.PeerID) {
	t.mu.Lock()
	_, ok := t.dests[id]
	delete(t.dests, id)
	t.mu.Unlock()

	if ok && t.OnConnectionChange != nil {
		t.OnConnectionChange(id, false)
	}
}

// IsConnected reports whether peer currently has an open Destination.
func (t *Transport) IsConnected(peer wire.PeerID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.dests[peer]
	return ok
}

// Destinations returns a snapshot of every currently open peer connection.
func (t *Transport) Destinations() []*Destination {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Destination, 0, len(t.dests))
	for _, d := range t.dests {
		out = append(out, d)
	}
	return out
}

// destinationFor returns the Destination for peer, if still connected.
func (t *Transport) destinationFor(peer wire.PeerID) (*Destination, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.dests[peer]
	return d, ok
}

// Request sends a request to endpointName on peer and waits for the
// matching response, or for ctx to be done. The request id is allocated
// and tracked by the target Destination.
func (t *Transport) Request(ctx context.Context, peer wire.PeerID, endpointName string, payload []byte) ([]byte, error) {
	dest, ok := t.destinationFor(peer)
	if !ok {
		return nil, ErrNotConnected
	}
	return dest.Request(ctx, endpointName, payload)
}

// Broadcast sends payload under endpointName to every connected peer with
// RequestID 0 (unsolicited). Errors writing to individual peers are
// logged and otherwise ignored: one dead connection must not stop the
// broadcast to the rest.
func (t *Transport) Broadcast(endpointName string, payload []byte) error {
	for _, dest := range t.Destinations() {
		if err := dest.send(wire.Message{EndpointName: endpointName, Payload: payload}); err != nil {
			t.logger.Warn("transport: broadcast write failed", "peer", dest.ID, "endpoint", endpointName, "error", err.Error())
		}
	}
	return nil
}

// PendingRequests returns the total number of in-flight requests this
// Transport is waiting on responses for, across every Destination.
func (t *Transport) PendingRequests() int {
	total := 0
	for _, dest := range t.Destinations() {
		total += dest.pendingCount()
	}
	return total
}

// dispatchRequest looks up the local handler for name and runs it. A
// missing handler or a handler error yields a nil (zero-length) payload,
// which is still sent back so the requester is always unblocked.
func (t *Transport) dispatchRequest(ctx context.Context, name string, payload []byte) []byte {
	t.mu.RLock()
	ep, ok := t.endpoints[name]
	t.mu.RUnlock()
	if !ok {
		t.logger.Warn("transport: request for unknown endpoint", "endpoint", name)
		return nil
	}
	handler, ok := ep.(endpoint.RequestHandler)
	if !ok {
		t.logger.Warn("transport: endpoint does not handle requests", "endpoint", name)
		return nil
	}
	resp, err := handler.HandleRequest(ctx, payload)
	if err != nil {
		t.logger.Warn("transport: request handler error", "endpoint", name, "error", err.Error())
		return nil
	}
	return resp
}

// dispatchUnsolicited forwards a broadcast frame to the local handler
// registered under name, if any.
func (t *Transport) dispatchUnsolicited(source wire.PeerID, name string, payload []byte) {
	t.mu.RLock()
	ep, ok := t.endpoints[name]
	t.mu.RUnlock()
	if !ok {
		return
	}
	handler, ok := ep.(endpoint.UnsolicitedHandler)
	if !ok {
		return
	}
	handler.HandleUnsolicited(source, payload)
}

// Close shuts down the listener (if any) and every open Destination.
func (t *Transport) Close() error {
	t.mu.Lock()
	l := t.listener
	t.listener = nil
	dests := make([]*Destination, 0, len(t.dests))
	for _, d := range t.dests {
		dests = append(dests, d)
	}
	t.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	for _, d := range dests {
		d.Close()
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
