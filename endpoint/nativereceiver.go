package endpoint

import (
	"github.com/ivanders/scalopus/wire"
)

// NativeTraceReceiverName is the fixed registration name of the
// NativeTraceReceiver endpoint. NativeTraceSender broadcasts under this
// name, not its own, since it is the receiver's local registration that
// the transport dispatches unsolicited frames against.
const NativeTraceReceiverName = "native_trace_receiver"

// NativeTraceReceiver is the client-side counterpart of NativeTraceSender:
// it receives broadcast NativeFrame payloads and forwards the decoded
// frame to whatever sink the owner installed (typically a
// NativeTraceProvider feeding a catapult.Source).
type NativeTraceReceiver struct {
	sink func(source wire.PeerID, frame *wire.NativeFrame)
}

// NewNativeTraceReceiver returns a receiver that discards frames until
// SetSink is called.
func NewNativeTraceReceiver() *NativeTraceReceiver {
	return &NativeTraceReceiver{sink: func(wire.PeerID, *wire.NativeFrame) {}}
}

// SetSink installs the callback invoked for every decoded frame.
func (r *NativeTraceReceiver) SetSink(sink func(source wire.PeerID, frame *wire.NativeFrame)) {
	r.sink = sink
}

func (r *NativeTraceReceiver) Name() string { return NativeTraceReceiverName }

// RemoteName reports the name a peer must advertise via introspect for
// this receiver to be worth attaching: the sender counterpart it expects
// to broadcast frames, not its own local registration name.
func (r *NativeTraceReceiver) RemoteName() string { return NativeTraceSenderName }

// HandleUnsolicited decodes payload and forwards it to the installed sink.
// Malformed frames are silently dropped: a corrupt broadcast from one peer
// must not take down the receiver for every other peer.
func (r *NativeTraceReceiver) HandleUnsolicited(source wire.PeerID, payload []byte) {
	frame, err := wire.DecodeNativeFrame(payload)
	if err != nil {
		return
	}
	r.sink(source, frame)
}
