// Package wire implements the length-prefixed framing protocol used by
// the transport layer, plus the two object encodings carried inside a
// frame's payload: a JSON encoding for low-volume control endpoints and a
// MessagePack encoding for the high-volume native trace broadcast.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed indicates a frame failed to decode (a short/aborted read
// midway through a field). The connection
// that produced it must be treated as dead.
var ErrMalformed = errors.New("wire: malformed frame")

// Message is one wire unit: a request id (0 means broadcast/unsolicited),
// the name of the endpoint it targets, and an opaque payload.
type Message struct {
	RequestID    uint64
	EndpointName string
	Payload      []byte
}

// PeerID identifies one connection from a Transport's point of view. It is
// opaque outside the transport package; endpoints only ever compare it for
// equality or use it to address a reply back to the connection a broadcast
// arrived on.
type PeerID uint64

// Encode writes m to w in the wire format:
//
//	request_id        8 bytes  little-endian
//	endpoint_name_len 2 bytes  little-endian
//	endpoint_name     endpoint_name_len bytes, UTF-8
//	payload_len       4 bytes  little-endian
//	payload           payload_len bytes
func Encode(w io.Writer, m Message) error {
	if len(m.EndpointName) > 1<<16-1 {
		return fmt.Errorf("wire: endpoint name too long (%d bytes)", len(m.EndpointName))
	}
	if len(m.Payload) > 1<<32-1 {
		return fmt.Errorf("wire: payload too long (%d bytes)", len(m.Payload))
	}

	var header [10]byte
	binary.LittleEndian.PutUint64(header[0:8], m.RequestID)
	binary.LittleEndian.PutUint16(header[8:10], uint16(len(m.EndpointName)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, m.EndpointName); err != nil {
		return err
	}
	var payloadLen [4]byte
	binary.LittleEndian.PutUint32(payloadLen[:], uint32(len(m.Payload)))
	if _, err := w.Write(payloadLen[:]); err != nil {
		return err
	}
	if len(m.Payload) == 0 {
		return nil
	}
	_, err := w.Write(m.Payload)
	return err
}

// Decode reads one Message from r. A clean EOF before any bytes are read
// returns io.EOF (the caller should treat this as a normal close); any
// other short read returns ErrMalformed wrapping the underlying cause,
// and the connection must be closed.
//
// Decode performs no internal buffering of its own: callers that decode
// repeatedly from the same stream (every transport connection does) must
// supply the same *bufio.Reader on every call, or bytes read ahead by one
// call's buffer would be silently discarded before the next.
func Decode(r io.Reader) (Message, error) {
	var requestIDBuf [8]byte
	if _, err := io.ReadFull(r, requestIDBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("%w: request id: %v", ErrMalformed, err)
	}

	var nameLenBuf [2]byte
	if _, err := io.ReadFull(r, nameLenBuf[:]); err != nil {
		return Message{}, fmt.Errorf("%w: endpoint name length: %v", ErrMalformed, err)
	}
	nameLen := binary.LittleEndian.Uint16(nameLenBuf[:])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Message{}, fmt.Errorf("%w: endpoint name: %v", ErrMalformed, err)
	}

	var payloadLenBuf [4]byte
	if _, err := io.ReadFull(r, payloadLenBuf[:]); err != nil {
		return Message{}, fmt.Errorf("%w: payload length: %v", ErrMalformed, err)
	}
	payloadLen := binary.LittleEndian.Uint32(payloadLenBuf[:])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Message{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
		}
	}

	return Message{
		RequestID:    binary.LittleEndian.Uint64(requestIDBuf[:]),
		EndpointName: string(name),
		Payload:      payload,
	}, nil
}
