package wire_test

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ivanders/scalopus/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []wire.Message{
		{RequestID: 0, EndpointName: "introspect", Payload: nil},
		{RequestID: 7, EndpointName: "process_info", Payload: []byte(`{"cmd":"info"}`)},
		{RequestID: 1 << 40, EndpointName: "", Payload: []byte{0x01, 0x02, 0x03}},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		if err := wire.Encode(&buf, want); err != nil {
			t.Fatalf("Encode(%+v): %v", want, err)
		}
		got, err := wire.Decode(&buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.RequestID != want.RequestID || got.EndpointName != want.EndpointName || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeMultipleFramesOnSharedReader(t *testing.T) {
	var buf bytes.Buffer
	frames := []wire.Message{
		{RequestID: 1, EndpointName: "a", Payload: []byte("first")},
		{RequestID: 2, EndpointName: "bb", Payload: []byte("second-payload")},
		{RequestID: 3, EndpointName: "ccc", Payload: nil},
	}
	for _, f := range frames {
		if err := wire.Encode(&buf, f); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for i, want := range frames {
		got, err := wire.Decode(r)
		if err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		if got.RequestID != want.RequestID || got.EndpointName != want.EndpointName || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("frame %d mismatch: got %+v, want %+v", i, got, want)
		}
	}
	if _, err := wire.Decode(r); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last frame, got %v", err)
	}
}

func TestDecodeCleanEOF(t *testing.T) {
	_, err := wire.Decode(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecodeTruncatedFrameIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.Encode(&buf, wire.Message{RequestID: 1, EndpointName: "x", Payload: []byte("hello")}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := wire.Decode(bytes.NewReader(truncated))
	if !errors.Is(err, wire.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestControlPayloadRoundTrip(t *testing.T) {
	want := wire.ConfiguratorState{
		ProcessEnabled:     true,
		SetProcess:         true,
		NewProducerEnabled: false,
		SetNewProducer:     true,
		Producers:          map[string]bool{"1": true, "2": false},
	}
	data, err := wire.MarshalControl(want)
	if err != nil {
		t.Fatalf("MarshalControl: %v", err)
	}
	var got wire.ConfiguratorState
	if err := wire.UnmarshalControl(data, &got); err != nil {
		t.Fatalf("UnmarshalControl: %v", err)
	}
	if got.ProcessEnabled != want.ProcessEnabled || len(got.Producers) != len(want.Producers) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestNativeFrameRoundTrip(t *testing.T) {
	want := &wire.NativeFrame{
		ProducerID: 42,
		Events: []wire.NativeEvent{
			{TimestampNanos: 100, TraceID: 7, Kind: 1, Value: 0},
			{TimestampNanos: 200, TraceID: 7, Kind: 2, Value: 0},
			{TimestampNanos: 300, TraceID: 9, Kind: 4, Value: -5},
		},
	}
	data, err := wire.EncodeNativeFrame(want)
	if err != nil {
		t.Fatalf("EncodeNativeFrame: %v", err)
	}
	got, err := wire.DecodeNativeFrame(data)
	if err != nil {
		t.Fatalf("DecodeNativeFrame: %v", err)
	}
	if got.ProducerID != want.ProducerID || len(got.Events) != len(want.Events) {
		t.Fatalf("frame mismatch: got %+v, want %+v", got, want)
	}
	for i := range want.Events {
		if got.Events[i] != want.Events[i] {
			t.Fatalf("event %d mismatch: got %+v, want %+v", i, got.Events[i], want.Events[i])
		}
	}
}

func TestNativeFrameEmptyEvents(t *testing.T) {
	want := &wire.NativeFrame{ProducerID: 1}
	data, err := wire.EncodeNativeFrame(want)
	if err != nil {
		t.Fatalf("EncodeNativeFrame: %v", err)
	}
	got, err := wire.DecodeNativeFrame(data)
	if err != nil {
		t.Fatalf("DecodeNativeFrame: %v", err)
	}
	if got.ProducerID != want.ProducerID || len(got.Events) != 0 {
		t.Fatalf("got %+v, want empty events", got)
	}
}
