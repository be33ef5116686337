package nrepl

import (
	"sync"

	"github.com/google/uuid"

	"nrepl.dev/nrepl/langrt"
)

// Registry tracks every live session for one server. It is an explicit
// value threaded through the server and connections rather than a package
// global, so shared mutable state never hides behind a package-level
// singleton.
type Registry struct {
	rt      langrt.Runtime
	metrics SessionMetrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// SessionMetrics is the subset of metrics.Collector the registry reports
// into.
type SessionMetrics interface {
	SessionCreated()
	SessionClosed()
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) SessionCreated() {}
func (noopSessionMetrics) SessionClosed()  {}

// NewRegistry returns an empty Registry whose sessions evaluate against rt.
func NewRegistry(rt langrt.Runtime, m SessionMetrics) *Registry {
	if m == nil {
		m = noopSessionMetrics{}
	}
	return &Registry{rt: rt, metrics: m, sessions: make(map[string]*Session)}
}

// Create registers and returns a brand-new session with default bindings.
func (r *Registry) Create() *Session {
	s := newSession(uuid.NewString(), r.rt)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.metrics.SessionCreated()
	return s
}

// Clone registers a new session that inherits a copy of parent's bindings.
// If parent is unknown, behaves like Create: the default session middleware
// wrap falls back to "clone from nothing" when the request named no parent.
func (r *Registry) Clone(parent *Session) *Session {
	id := uuid.NewString()
	s := &Session{ID: id, outLimit: defaultOutLimit, stdin: newNeedInputReader()}
	if parent != nil {
		s.bindings = parent.clone()
	} else {
		s.bindings = &langrt.Bindings{Namespace: "user", Vars: map[string]any{}}
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	r.metrics.SessionCreated()
	return s
}

// Get returns the session registered under id, or ok=false.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close unregisters id. It does not cancel or wait for an in-flight eval:
// responses from an eval already running against the now-unregistered
// session still get sent, still tagged with id, simply against a Session
// object the registry no longer hands out to new lookups.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.metrics.SessionClosed()
	}
	return ok
}

// IDs returns every currently registered session id.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
