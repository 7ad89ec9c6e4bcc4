// Package session tracks per-conversation chat state: the turn history
// handed back to the language model and the sticky patient scope that
// keeps follow-up questions anchored to the same patient.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clidram/medrag/pkg/llm"
)

// DefaultTTL is how long an idle session survives before Sweep removes it.
const DefaultTTL = 5 * time.Minute

// Session holds the mutable state of one conversation.
type Session struct {
	ID           string     `json:"id"`
	History      []llm.Turn `json:"history"`
	PatientSeq   string     `json:"patient_seq,omitempty"`
	Turns        int        `json:"turns"`
	LastAccessed time.Time  `json:"last_accessed"`
}

// Store keeps sessions in memory with lazy TTL expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore returns a Store with the given idle TTL. A non-positive ttl
// falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// snapshot copies a session for use outside the store lock. The history
// slice is cloned so callers never share backing arrays with the stored
// session.
func snapshot(sess *Session) *Session {
	cp := *sess
	cp.History = append([]llm.Turn(nil), sess.History...)
	return &cp
}

// Get returns a snapshot of the session for id, creating a fresh one when
// id is empty, unknown, or expired. Caller-supplied ids are kept so clients
// can thread their own session keys; an empty id gets a generated one.
// Found sessions have their access time bumped. The second return reports
// whether an existing live session was found. Snapshots are read-only views;
// mutations go through Update or Put.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			if s.now().Sub(sess.LastAccessed) <= s.ttl {
				sess.LastAccessed = s.now()
				return snapshot(sess), true
			}
			delete(s.sessions, id)
		}
	}

	sess := &Session{
		ID:           id,
		LastAccessed: s.now(),
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessions[sess.ID] = sess
	return snapshot(sess), false
}

// Update applies fn to the live session for id while holding the store
// lock, so concurrent turns on the same session serialize instead of
// racing. A missing or expired session is recreated first. Returns a
// snapshot of the session after fn ran.
func (s *Store) Update(id string, fn func(*Session)) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok && s.now().Sub(sess.LastAccessed) > s.ttl {
		delete(s.sessions, id)
		ok = false
	}
	if !ok {
		sess = &Session{ID: id}
		if sess.ID == "" {
			sess.ID = uuid.NewString()
		}
		s.sessions[sess.ID] = sess
	}

	fn(sess)
	sess.LastAccessed = s.now()
	return snapshot(sess)
}

// Put stores a copy of sess under its ID, bumping the access time.
func (s *Store) Put(sess *Session) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := snapshot(sess)
	cp.LastAccessed = s.now()
	s.sessions[cp.ID] = cp
}

// Delete removes the session for id. Unknown ids are a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Reset clears the conversation history of the session for id while
// keeping the session itself alive. It reports whether the session
// existed.
func (s *Store) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.History = nil
	sess.PatientSeq = ""
	sess.Turns = 0
	sess.LastAccessed = s.now()
	return true
}

// Sweep drops every session idle longer than the TTL and returns how
// many were removed. Callers run it lazily, typically on each chat
// request.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastAccessed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
