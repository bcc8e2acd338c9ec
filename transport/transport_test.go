package transport_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/transport"
	"github.com/ivanders/scalopus/wire"
)

// echoEndpoint answers every JSON string request with that string plus
// "-pong", as JSON,
// used only to exercise the request/response path without pulling in a
// real control endpoint.
type echoEndpoint struct{ name string }

func (e echoEndpoint) Name() string { return e.name }

func (e echoEndpoint) HandleRequest(_ context.Context, payload []byte) ([]byte, error) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return json.Marshal(s + "-pong")
}

func TestServeConnectRequestResponse(t *testing.T) {
	server := transport.New(900001, nil)
	server.AddEndpoint(echoEndpoint{name: "echo"})
	if err := server.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer server.Close()

	client := transport.New(900002, nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dest, err := client.Connect(ctx, 900001)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	payload, _ := json.Marshal("ping")
	resp, err := dest.Request(ctx, "echo", payload)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var got string
	if err := json.Unmarshal(resp, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got != "ping-pong" {
		t.Fatalf("got %q, want %q", got, "ping-pong")
	}
}

func TestBroadcastReachesUnsolicitedHandler(t *testing.T) {
	server := transport.New(900003, nil)
	if err := server.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer server.Close()

	client := transport.New(900004, nil)
	defer client.Close()

	received := make(chan []byte, 1)
	receiver := endpoint.NewNativeTraceReceiver()
	receiver.SetSink(func(_ wire.PeerID, frame *wire.NativeFrame) {
		select {
		case received <- []byte{byte(frame.ProducerID)}:
		default:
		}
	})
	client.AddEndpoint(receiver)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Connect(ctx, 900003); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Give the accept loop time to register the new connection before the
	// server broadcasts.
	time.Sleep(50 * time.Millisecond)

	frame := &wire.NativeFrame{ProducerID: 7}
	payload, err := wire.EncodeNativeFrame(frame)
	if err != nil {
		t.Fatalf("EncodeNativeFrame: %v", err)
	}
	if err := server.Broadcast(endpoint.NativeTraceReceiverName, payload); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	select {
	case got := <-received:
		if got[0] != 7 {
			t.Fatalf("producer id byte = %d, want 7", got[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestConnectionChangeCallback(t *testing.T) {
	server := transport.New(900005, nil)
	if err := server.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer server.Close()

	events := make(chan bool, 8)
	server.OnConnectionChange = func(_ wire.PeerID, connected bool) {
		events <- connected
	}

	client := transport.New(900006, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dest, err := client.Connect(ctx, 900005)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case connected := <-events:
		if !connected {
			t.Fatal("expected connect event first")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect event")
	}

	dest.Close()

	select {
	case connected := <-events:
		if connected {
			t.Fatal("expected disconnect event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}
}

func TestIsConnectedAndPendingRequests(t *testing.T) {
	server := transport.New(900007, nil)
	server.AddEndpoint(echoEndpoint{name: "echo"})
	if err := server.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer server.Close()

	client := transport.New(900008, nil)
	defer client.Close()

	ctx := context.Background()
	dest, err := client.Connect(ctx, 900007)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.IsConnected(dest.ID) {
		t.Fatal("expected client to report connected")
	}
	if client.PendingRequests() != 0 {
		t.Fatal("expected no pending requests before any Request call")
	}
}
