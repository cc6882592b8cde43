package stream

import "sync"

// Registry owns live sessions by connection ID. Take is the single point at
// which ownership of a session's buffer leaves the registry; whoever gets a
// session from Take is responsible for discarding its buffer.
//
// IDs that have been taken stay retired until Forget so that late events for
// the same connection are recognized instead of opening a fresh session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	retired  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		retired:  make(map[string]struct{}),
	}
}

// Add registers s unless its ID is live or retired.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return false
	}
	if _, ok := r.retired[s.ID]; ok {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Take removes and returns the session, retiring its ID.
func (r *Registry) Take(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.retired[id] = struct{}{}
	return s, ok
}

func (r *Registry) IsRetired(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.retired[id]
	return ok
}

// Forget drops the retirement marker once the connection is gone.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.retired, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Drain takes every live session at once.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
		r.retired[id] = struct{}{}
	}
	return out
}
