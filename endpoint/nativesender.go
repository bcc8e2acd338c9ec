package endpoint

import (
	"sync"
	"time"

	"github.com/ivanders/scalopus/ringbuffer"
	"github.com/ivanders/scalopus/trace"
	"github.com/ivanders/scalopus/wire"
)

// NativeTraceSenderName is the fixed registration name of the
// NativeTraceSender endpoint.
const NativeTraceSenderName = "native_trace_sender"

// DefaultDrainInterval is how often NativeTraceSender drains its
// collector's active and orphaned producer rings and broadcasts their
// contents, unless overridden.
const DefaultDrainInterval = 10 * time.Millisecond

// drainBatchSize bounds how many events a single PopInto call removes from
// one producer's ring, and so how many events one broadcast frame carries.
// A drain pass keeps popping batches from a ring until it is empty before
// moving on to the next producer.
const drainBatchSize = 4096

// Broadcaster is the subset of Transport a NativeTraceSender needs: the
// ability to fan a payload out to every connected peer under this
// endpoint's name.
type Broadcaster interface {
	Broadcast(endpointName string, payload []byte) error
}

// NativeTraceSender periodically drains every active and orphaned
// producer ring known to a Collector and broadcasts the collected events
// as MessagePack-encoded NativeFrame payloads. It is the process acting
// as a trace source.
type NativeTraceSender struct {
	collector *trace.Collector
	interval  time.Duration

	mu          sync.Mutex
	broadcaster Broadcaster

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewNativeTraceSender returns a sender draining collector every interval
// (DefaultDrainInterval if interval <= 0). Call Start once a Broadcaster
// (the owning Transport) is available.
func NewNativeTraceSender(collector *trace.Collector, interval time.Duration) *NativeTraceSender {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &NativeTraceSender{collector: collector, interval: interval}
}

func (s *NativeTraceSender) Name() string { return NativeTraceSenderName }

// Start begins the drain loop against b. It is safe to call at most once;
// callers needing to restart must construct a new NativeTraceSender.
func (s *NativeTraceSender) Start(b Broadcaster) {
	s.mu.Lock()
	s.broadcaster = b
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

// Stop halts the drain loop and waits for the final pass to complete.
func (s *NativeTraceSender) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
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

func (s *NativeTraceSender) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.drainOnce()
		case <-s.stopCh:
			s.drainOnce()
			return
		}
	}
}

func (s *NativeTraceSender) drainOnce() {
	for id, p := range s.collector.ActiveProducers() {
		s.drainProducer(id, p.Ring)
	}
	for _, p := range s.collector.DrainOrphans() {
		s.drainProducer(p.ID, p.Ring)
	}
}

func (s *NativeTraceSender) drainProducer(id int64, r *ringbuffer.Ring) {
	var batch [drainBatchSize]ringbuffer.Event
	for {
		n := r.PopInto(batch[:])
		if n == 0 {
			return
		}
		frame := &wire.NativeFrame{ProducerID: id, Events: make([]wire.NativeEvent, n)}
		for i := 0; i < n; i++ {
			e := batch[i]
			frame.Events[i] = wire.NativeEvent{
				TimestampNanos: e.TimestampNanos,
				TraceID:        e.TraceID,
				Kind:           uint8(e.Kind),
				Value:          e.Value,
			}
		}
		payload, err := wire.EncodeNativeFrame(frame)
		if err != nil {
			continue
		}
		s.mu.Lock()
		b := s.broadcaster
		s.mu.Unlock()
		if b != nil {
			_ = b.Broadcast(NativeTraceReceiverName, payload)
		}
		if n < drainBatchSize {
			return
		}
	}
}
