package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ivanders/scalopus/wire"
)

// Destination is one peer connection: either accepted by Serve or dialed
// by Connect. Its ID is stable for the connection's lifetime and is the
// PeerID passed to endpoint.UnsolicitedHandler.HandleUnsolicited.
type Destination struct {
	ID        wire.PeerID
	conn      net.Conn
	transport *Transport

	writeMu sync.Mutex
	bw      *bufio.Writer
	br      *bufio.Reader

	nextReqID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan wire.Message

	closeOnce sync.Once
	doneCh    chan struct{}
}

func newDestination(id wire.PeerID, conn net.Conn, t *Transport) *Destination {
	return &Destination{
		ID:        id,
		conn:      conn,
		transport: t,
		bw:        bufio.NewWriter(conn),
		br:        bufio.NewReader(conn),
		pending:   make(map[uint64]chan wire.Message),
		doneCh:    make(chan struct{}),
	}
}

func (d *Destination) start() {
	go d.readLoop()
}

func (d *Destination) readLoop() {
	defer close(d.doneCh)
	defer d.transport.removeDestination(d.ID)
	defer d.conn.Close()

	for {
		msg, err := wire.Decode(d.br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.transport.logger.Warn("transport: decode failed, closing connection", "peer", d.ID, "error", err.Error())
			}
			return
		}
		d.handle(msg)
	}
}

func (d *Destination) handle(msg wire.Message) {
	if msg.RequestID != 0 {
		if ch, ok := d.takePending(msg.RequestID); ok {
			ch <- msg
			return
		}
	}

	if msg.RequestID == 0 {
		d.transport.dispatchUnsolicited(d.ID, msg.EndpointName, msg.Payload)
		return
	}

	// Non-zero request id with no pending request: this is an incoming
	// request, not a stray response. Answer it on the same connection,
	// echoing the request id (with an empty payload if no local handler
	// is registered under the name).
	resp := d.transport.dispatchRequest(context.Background(), msg.EndpointName, msg.Payload)
	_ = d.send(wire.Message{RequestID: msg.RequestID, EndpointName: msg.EndpointName, Payload: resp})
}

func (d *Destination) takePending(id uint64) (chan wire.Message, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	ch, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return ch, ok
}

func (d *Destination) pendingCount() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pending)
}

func (d *Destination) send(msg wire.Message) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := wire.Encode(d.bw, msg); err != nil {
		return err
	}
	return d.bw.Flush()
}

// Request sends a request to endpointName and blocks until a matching
// response arrives, ctx is done, or the connection closes.
func (d *Destination) Request(ctx context.Context, endpointName string, payload []byte) ([]byte, error) {
	id := d.nextReqID.Add(1)
	ch := make(chan wire.Message, 1)

	d.pendingMu.Lock()
	d.pending[id] = ch
	d.pendingMu.Unlock()

	if err := d.send(wire.Message{RequestID: id, EndpointName: endpointName, Payload: payload}); err != nil {
		d.takePending(id)
		return nil, fmt.Errorf("transport: send request: %w", err)
	}

	select {
	case resp := <-ch:
		return resp.Payload, nil
	case <-ctx.Done():
		d.takePending(id)
		return nil, ctx.Err()
	case <-d.doneCh:
		d.takePending(id)
		return nil, fmt.Errorf("transport: connection to peer %d closed", d.ID)
	}
}

// Close terminates the underlying connection. Safe to call more than
// once and from any goroutine.
func (d *Destination) Close() {
	d.closeOnce.Do(func() {
		d.conn.Close()
	})
	<-d.doneCh
}
