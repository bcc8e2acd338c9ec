// Package session assembles the transport, trace plane, and endpoints
// into the two facades embedding code actually reaches for: Session, the
// server-side object a traced process constructs once at startup, and
// Recorder, the client-side object a tracing tool uses to attach to one
// or more Sessions and capture a Catapult trace.
package session

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ivanders/scalopus/endpoint"
	"github.com/ivanders/scalopus/trace"
	"github.com/ivanders/scalopus/transport"
)

// Session is the server side of scalopus: it owns the process's
// Configurator, Collector and Tracker, serves them over a Transport
// listening on this process's abstract socket address, and runs the
// NativeTraceSender drain loop.
type Session struct {
	cfg    Config
	logger *slog.Logger

	configurator *trace.Configurator
	collector    *trace.Collector
	tracker      *trace.Tracker

	transport   *transport.Transport
	processInfo *endpoint.ProcessInfo
	sender      *endpoint.NativeTraceSender
}

// New constructs a Session for the current process. It does not start
// serving until Start is called.
func New(cfg Config, logger *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	ringCapacity := cfg.RingCapacity
	if ringCapacity <= 0 {
		ringCapacity = trace.DefaultRingCapacity
	}

	s := &Session{
		cfg:          cfg,
		logger:       logger,
		configurator: trace.NewConfigurator(),
		collector:    trace.NewCollector(ringCapacity),
		tracker:      trace.NewTracker(),
	}
	s.transport = transport.New(os.Getpid(), logger)
	s.processInfo = endpoint.NewProcessInfo(cfg.ProcessName)
	s.sender = endpoint.NewNativeTraceSender(s.collector, cfg.DrainInterval)

	introspect := endpoint.NewIntrospect()
	introspect.SetLister(s.transport.Endpoints)

	s.transport.AddEndpoint(introspect)
	s.transport.AddEndpoint(s.processInfo)
	s.transport.AddEndpoint(endpoint.NewTraceMapping(s.tracker, os.Getpid()))
	s.transport.AddEndpoint(endpoint.NewTraceConfigurator(s.configurator))
	s.transport.AddEndpoint(s.sender)

	return s
}

// Start begins serving on this process's abstract socket and begins
// draining traced producer rings.
func (s *Session) Start() error {
	if err := s.transport.Serve(); err != nil {
		return fmt.Errorf("session: start: %w", err)
	}
	s.sender.Start(s.transport)
	s.logger.Info("session: started", "address", s.transport.Address())
	return nil
}

// Stop halts the drain loop and closes the transport.
func (s *Session) Stop() {
	s.sender.Stop()
	s.transport.Close()
	s.logger.Info("session: stopped")
}

// NewEmitter acquires a fresh Producer from this session's Collector and
// returns an Emitter bound to it. Call emitter.Close(session.Collector())
// when the traced goroutine exits.
func (s *Session) NewEmitter() *trace.Emitter {
	producer := s.collector.Acquire()
	s.processInfo.SetThread(fmt.Sprintf("%d", producer.ID), fmt.Sprintf("producer-%d", producer.ID))
	return trace.NewEmitter(s.configurator, producer)
}

// Collector returns this session's Collector, for passing to
// Emitter.Close.
func (s *Session) Collector() *trace.Collector { return s.collector }

// Tracker returns this session's trace-id-to-name Tracker, for use with
// trace.Site.
func (s *Session) Tracker() *trace.Tracker { return s.tracker }

// Configurator returns this session's Configurator.
func (s *Session) Configurator() *trace.Configurator { return s.configurator }

// Address returns the abstract socket address this session serves on.
func (s *Session) Address() string { return s.transport.Address() }

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
