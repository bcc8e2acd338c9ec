package trace

import (
	"hash/crc32"
	"sync"
)

// Site is a per-call-site registration guard: it registers its name with
// a Tracker exactly once no matter how many times ID is called, mirroring
// the C++ macro's "static initialized once" contract without access to a
// real static-local-per-call-site in Go.
type Site struct {
	once sync.Once
	id   uint32
}

// ID returns the trace id for this call site, deriving it from name on
// first use (CRC32 of name) and registering it in tracker.
func (s *Site) ID(tracker *Tracker, name string) uint32 {
	s.once.Do(func() {
		s.id = crc32.ChecksumIEEE([]byte(name))
		tracker.RegisterOnce(s.id, name)
	})
	return s.id
}

// TraceIDFor derives the trace id CRC32 assigns to name. Exposed so
// callers that need the id without a Site (e.g. tests) can compute it
// consistently.
func TraceIDFor(name string) uint32 {
	return crc32.ChecksumIEEE([]byte(name))
}

// Scope emits a scope-entry event at construction and a scope-exit event
// when End is called. Callers must defer End() to guarantee a balanced
// entry/exit pair even across early returns or panics — Scope itself does
// not recover panics, matching the original's non-unwinding-safe-but-
// destructor-runs guarantee.
type Scope struct {
	emitter *Emitter
	id      uint32
	ended   bool
}

// NewScope emits ScopeEntry(id) on e and returns a Scope whose End method
// will emit the matching ScopeExit.
func NewScope(e *Emitter, id uint32) *Scope {
	e.ScopeEntry(id)
	return &Scope{emitter: e, id: id}
}

// End emits the scope-exit event. It is idempotent: calling End more than
// once only emits once, guarding against a caller's defer plus an
// explicit early End.
func (s *Scope) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.emitter.ScopeExit(s.id)
}
