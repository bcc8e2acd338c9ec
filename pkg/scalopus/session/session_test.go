package session_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ivanders/scalopus/pkg/scalopus/session"
	"github.com/ivanders/scalopus/trace"
)

func TestSessionStartStopServesAndClosesCleanly(t *testing.T) {
	s := session.New(session.Config{ProcessName: "unit-test"}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	emitter := s.NewEmitter()
	emitter.ScopeEntry(1)
	emitter.ScopeExit(1)
	emitter.Close(s.Collector())
}

func TestSessionTracedScopeReachesRecorder(t *testing.T) {
	sess := session.New(session.Config{ProcessName: "traced-proc", DrainInterval: 5 * time.Millisecond}, nil)
	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	id := trace.TraceIDFor("unit.scope")
	sess.Tracker().RegisterOnce(id, "unit.scope")

	emitter := sess.NewEmitter()
	defer func() { emitter.Close(sess.Collector()) }()

	emitter.ScopeEntry(id)
	time.Sleep(5 * time.Millisecond)
	emitter.ScopeExit(id)

	pid := os.Getpid()
	discover := func() ([]int, error) { return []int{pid}, nil }
	rec := session.NewRecorder(session.Config{DiscoveryInterval: 20 * time.Millisecond}, pid+1, discover, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec.Start(ctx)
	defer rec.Stop()

	if !waitForPeer(rec, pid, 2*time.Second) {
		t.Fatal("recorder never connected to session")
	}

	if err := rec.StartRecording(ctx, pid); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	emitter.ScopeEntry(id)
	time.Sleep(5 * time.Millisecond)
	emitter.ScopeExit(id)

	// Give the session's drain loop and the broadcast path time to deliver
	// at least one frame.
	time.Sleep(150 * time.Millisecond)

	doc, err := rec.FinishRecording(pid)
	if err != nil {
		t.Fatalf("FinishRecording: %v", err)
	}
	if len(doc.TraceEvents) == 0 {
		t.Fatal("expected at least one recorded event")
	}
	sawScope := false
	for _, e := range doc.TraceEvents {
		if e.Name == "unit.scope" {
			sawScope = true
		}
	}
	if !sawScope {
		t.Fatalf("traced scope unit.scope missing from recording: %+v", doc.TraceEvents)
	}
}

func waitForPeer(rec *session.Recorder, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, p := range rec.Peers() {
			if p == pid {
				return true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
