package server

import (
	"sync"
	"time"

	"github.com/chazu/curly/engine"
)

// sessionEntry is a live session plus its last access time.
type sessionEntry struct {
	session  *engine.Session
	lastUsed time.Time
}

// SessionStore manages REPL sessions. Each session owns a VM whose
// bindings persist between Evaluate calls.
type SessionStore struct {
	engine *engine.Engine

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

// NewSessionStore creates a session store whose sessions run on e.
func NewSessionStore(e *engine.Engine) *SessionStore {
	return &SessionStore{
		engine:   e,
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// Create starts a new session that captures console output.
func (s *SessionStore) Create() *engine.Session {
	session := s.engine.NewSession(nil)

	s.mu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session, lastUsed: s.now()}
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*engine.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastUsed = s.now()
	return entry.session, true
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns how many
// were removed.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, entry := range s.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Infof("swept %d idle sessions", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
