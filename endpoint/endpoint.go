// Package endpoint defines the capability interfaces a Transport dispatches
// requests to, plus the six concrete endpoints: session.Session registers
// the five server-side ones, and session.Recorder attaches the
// NativeTraceReceiver to each peer it connects to.
package endpoint

import (
	"context"

	"github.com/ivanders/scalopus/wire"
)

// Named is the minimal capability every endpoint provides: the name a
// Transport registers it under and routes Messages to.
type Named interface {
	Name() string
}

// RequestHandler answers a single request/response exchange. Returning an
// error causes the transport to send back an empty payload; the request
// is still resolved (never left pending) so the caller does not hang.
type RequestHandler interface {
	Named
	HandleRequest(ctx context.Context, payload []byte) ([]byte, error)
}

// UnsolicitedHandler receives broadcast frames (RequestID == 0) sent by a
// peer without a matching local request, such as native trace batches.
type UnsolicitedHandler interface {
	Named
	HandleUnsolicited(source wire.PeerID, payload []byte)
}

// RemoteNamed is implemented by endpoints whose own registration name is
// not the name a peer must advertise support for. NativeTraceReceiver is
// the motivating case: it registers locally under its own name so the
// transport can dispatch broadcasts to it, but it only does useful work
// against a peer that runs a NativeTraceSender, so introspect gating
// checks RemoteName instead of Name.
type RemoteNamed interface {
	Named
	RemoteName() string
}
