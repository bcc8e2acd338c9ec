package endpoint_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/trace"
	"github.com/ivanders/scalopus/wire"
)

func TestIntrospectListsRegisteredEndpoints(t *testing.T) {
	i := endpoint.NewIntrospect()
	i.SetLister(func() []string { return []string{"introspect", "process_info"} })

	data, err := i.HandleRequest(context.Background(), nil)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	var resp wire.IntrospectResponse
	if err := wire.UnmarshalControl(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sort.Strings(resp.Endpoints)
	if len(resp.Endpoints) != 2 || resp.Endpoints[0] != "introspect" || resp.Endpoints[1] != "process_info" {
		t.Fatalf("got %v", resp.Endpoints)
	}
}

func TestProcessInfoReportsThreads(t *testing.T) {
	p := endpoint.NewProcessInfo("test-process")
	p.SetThread("1", "main")
	p.SetThread("2", "worker")
	p.RemoveThread("2")

	data, err := p.HandleRequest(context.Background(), nil)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	var resp wire.ProcessInfoResponse
	if err := wire.UnmarshalControl(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Name != "test-process" {
		t.Fatalf("name = %q", resp.Name)
	}
	if _, ok := resp.Threads["2"]; ok {
		t.Fatal("removed thread still present")
	}
	if resp.Threads["1"] != "main" {
		t.Fatalf("threads = %v", resp.Threads)
	}
}

func TestTraceMappingReportsOwnAndMergedPeers(t *testing.T) {
	tracker := trace.NewTracker()
	tracker.RegisterOnce(1, "scope.a")
	tm := endpoint.NewTraceMapping(tracker, 100)
	tm.MergeRemote("200", map[string]string{"7": "scope.remote"})

	data, err := tm.HandleRequest(context.Background(), nil)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	var resp wire.TraceMappingResponse
	if err := wire.UnmarshalControl(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Mapping["100"]["1"] != "scope.a" {
		t.Fatalf("own mapping missing: %v", resp.Mapping)
	}
	if resp.Mapping["200"]["7"] != "scope.remote" {
		t.Fatalf("merged mapping missing: %v", resp.Mapping)
	}
}

func TestTraceConfiguratorSetAndGet(t *testing.T) {
	cfg := trace.NewConfigurator()
	cfg.Register(5)
	tc := endpoint.NewTraceConfigurator(cfg)

	req := wire.ConfiguratorRequest{
		Cmd: "set",
		State: wire.ConfiguratorState{
			SetProcess:     true,
			ProcessEnabled: false,
			Producers:      map[string]bool{"5": false},
		},
	}
	payload, err := wire.MarshalControl(req)
	if err != nil {
		t.Fatalf("MarshalControl: %v", err)
	}

	data, err := tc.HandleRequest(context.Background(), payload)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	var resp wire.ConfiguratorState
	if err := wire.UnmarshalControl(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ProcessEnabled {
		t.Fatal("process should be disabled after set")
	}
	if resp.Producers["5"] {
		t.Fatal("producer 5 should be disabled after set")
	}
	if got, _ := cfg.ProducerState(5); got {
		t.Fatal("underlying configurator not mutated")
	}
}

type fakeBroadcaster struct {
	mu      chan struct{}
	payload []byte
	name    string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{mu: make(chan struct{}, 64)}
}

func (f *fakeBroadcaster) Broadcast(name string, payload []byte) error {
	f.name = name
	f.payload = payload
	select {
	case f.mu <- struct{}{}:
	default:
	}
	return nil
}

func TestNativeTraceSenderDrainsAndBroadcasts(t *testing.T) {
	collector := trace.NewCollector(64)
	emitterCfg := trace.NewConfigurator()
	producer := collector.Acquire()
	emitter := trace.NewEmitter(emitterCfg, producer)
	emitter.ScopeEntry(1)
	emitter.ScopeExit(1)

	sender := endpoint.NewNativeTraceSender(collector, 2*time.Millisecond)
	fb := newFakeBroadcaster()
	sender.Start(fb)
	defer sender.Stop()

	select {
	case <-fb.mu:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}

	frame, err := wire.DecodeNativeFrame(fb.payload)
	if err != nil {
		t.Fatalf("DecodeNativeFrame: %v", err)
	}
	if frame.ProducerID != producer.ID {
		t.Fatalf("producer id = %d, want %d", frame.ProducerID, producer.ID)
	}
	if len(frame.Events) == 0 {
		t.Fatal("expected at least one drained event")
	}
	if fb.name != endpoint.NativeTraceReceiverName {
		t.Fatalf("broadcast under endpoint %q, want %q", fb.name, endpoint.NativeTraceReceiverName)
	}
}

func TestNativeTraceReceiverNameDiffersFromSender(t *testing.T) {
	r := endpoint.NewNativeTraceReceiver()
	if r.Name() == endpoint.NativeTraceSenderName {
		t.Fatalf("receiver registers under the sender's own name %q", r.Name())
	}
	if r.Name() != endpoint.NativeTraceReceiverName {
		t.Fatalf("Name() = %q, want %q", r.Name(), endpoint.NativeTraceReceiverName)
	}
	if r.RemoteName() != endpoint.NativeTraceSenderName {
		t.Fatalf("RemoteName() = %q, want %q", r.RemoteName(), endpoint.NativeTraceSenderName)
	}
}

func TestNativeTraceReceiverForwardsDecodedFrame(t *testing.T) {
	r := endpoint.NewNativeTraceReceiver()
	var got *wire.NativeFrame
	var gotSource wire.PeerID
	r.SetSink(func(source wire.PeerID, frame *wire.NativeFrame) {
		gotSource = source
		got = frame
	})

	want := &wire.NativeFrame{ProducerID: 3, Events: []wire.NativeEvent{{TraceID: 9}}}
	payload, err := wire.EncodeNativeFrame(want)
	if err != nil {
		t.Fatalf("EncodeNativeFrame: %v", err)
	}
	r.HandleUnsolicited(wire.PeerID(1), payload)

	if got == nil || got.ProducerID != 3 {
		t.Fatalf("got %+v", got)
	}
	if gotSource != wire.PeerID(1) {
		t.Fatalf("source = %d", gotSource)
	}
}

func TestNativeTraceReceiverDropsMalformedPayload(t *testing.T) {
	r := endpoint.NewNativeTraceReceiver()
	called := false
	r.SetSink(func(wire.PeerID, *wire.NativeFrame) { called = true })
	r.HandleUnsolicited(wire.PeerID(1), []byte{0xff, 0xff, 0xff})
	if called {
		t.Fatal("sink should not be called for malformed payload")
	}
}
