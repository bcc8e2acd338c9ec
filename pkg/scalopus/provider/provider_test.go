package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/pkg/scalopus/endpointmanager"
	"github.com/ivanders/scalopus/pkg/scalopus/provider"
	"github.com/ivanders/scalopus/trace"
	"github.com/ivanders/scalopus/transport"
	"github.com/ivanders/scalopus/wire"
)

func TestScopeTracingProviderUpdateAndResolve(t *testing.T) {
	tracker := trace.NewTracker()
	tracker.RegisterOnce(42, "scope.render")
	tm := endpoint.NewTraceMapping(tracker, 920001)

	server := transport.New(920001, nil)
	server.AddEndpoint(tm)
	introspect := endpoint.NewIntrospect()
	introspect.SetLister(server.Endpoints)
	server.AddEndpoint(introspect)
	if err := server.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer server.Close()

	discover := func() ([]int, error) { return []int{920001}, nil }
	m := endpointmanager.New(920099, discover, nil)
	m.AddEndpointFactory(func(pid int) endpoint.Named { return endpoint.NewIntrospect() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Manage(ctx); err != nil {
		t.Fatalf("Manage: %v", err)
	}

	p := provider.NewScopeTracingProvider(m, 920001)
	if err := p.UpdateMapping(ctx); err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}

	name, ok := p.ScopeName("920001", 42)
	if !ok || name != "scope.render" {
		t.Fatalf("ScopeName = %q, %v; want scope.render, true", name, ok)
	}
}

func TestNativeTraceProviderIngestsForwardedFrame(t *testing.T) {
	resolver := func(producerID int64, traceID uint32) (string, bool) {
		return "scope.x", true
	}
	ntp := provider.NewNativeTraceProvider(1, "scalopus", resolver)

	ep := ntp.NewReceiver()
	receiver, ok := ep.(*endpoint.NativeTraceReceiver)
	if !ok {
		t.Fatalf("factory returned %T, want *endpoint.NativeTraceReceiver", ep)
	}

	frame := &wire.NativeFrame{ProducerID: 5, Events: []wire.NativeEvent{{TraceID: 1, Kind: 1, TimestampNanos: 100}}}
	payload, err := wire.EncodeNativeFrame(frame)
	if err != nil {
		t.Fatalf("EncodeNativeFrame: %v", err)
	}
	receiver.HandleUnsolicited(wire.PeerID(1), payload)

	source := ntp.MakeSource()
	doc := source.FinishInterval()
	if len(doc.TraceEvents) != 1 || doc.TraceEvents[0].Name != "scope.x" {
		t.Fatalf("got %+v", doc.TraceEvents)
	}
}
