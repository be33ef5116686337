package nrepl

import (
	"sync"

	"nrepl.dev/nrepl/langrt"
)

// Session holds the dynamic evaluation context bound to one session id:
// namespace, the *1/*2/*3 result slots, the last exception seen, per-session
// output buffering limit, and a FIFO queue admitting one eval at a time.
type Session struct {
	ID string

	mu       sync.Mutex
	bindings *langrt.Bindings
	outLimit int

	// admitted guards single-flight evaluation: only one eval task may be
	// running for this session at a time.
	admitted bool
	queue    []*evalTask
	current  *evalTask

	stdin *needInputReader
}

// defaultOutLimit is the number of buffered bytes a session's stdout/stderr
// writer accumulates before flushing a message.
const defaultOutLimit = 1024

// newSession creates a fresh session with default bindings bound to rt.
func newSession(id string, rt langrt.Runtime) *Session {
	return &Session{
		ID: id,
		bindings: &langrt.Bindings{
			Namespace: "user",
			Vars:      map[string]any{},
		},
		outLimit: defaultOutLimit,
		stdin:    newNeedInputReader(),
	}
}

// clone returns a copy of this session's bindings, with its own Vars map,
// for the caller to install into a new Session, isolating mutation so
// subsequent def's in the clone must not affect the parent.
func (s *Session) clone() *langrt.Bindings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings.Clone()
}

// snapshot returns the session's current bindings for installing into an
// eval task, without copying Vars: the task mutates the live map directly,
// since this is the session's one live dynamic-binding set.
func (s *Session) snapshot() *langrt.Bindings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings
}

// setOutLimit updates the buffering threshold. This applies immediately to
// the live snapshot: the writer reads its threshold from this field on
// every write, so the new value is used from the very next write after the
// change. Bytes already buffered are not flushed under the old limit first;
// they flush together with later bytes once the buffer reaches whichever
// limit is current at that moment.
func (s *Session) setOutLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outLimit = n
}

func (s *Session) getOutLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outLimit
}
