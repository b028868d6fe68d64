package main

import (
	"sync"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// session serializes the turns of one conversation.
type session struct {
	mu    sync.Mutex
	state *domain.ConversationState
}

// sessionStore keeps conversations in memory. Idle sessions expire after ttl;
// when full, the least recently used one is dropped.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	seen     map[string]time.Time
	ttl      time.Duration
	max      int
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, max int) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		seen:     make(map[string]time.Time),
		ttl:      ttl,
		max:      max,
		now:      time.Now,
	}
}

// get returns the session for id, or a new one when id is empty, unknown or expired.
func (s *sessionStore) get(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expire(now)
	if sess, ok := s.sessions[id]; ok && id != "" {
		s.seen[id] = now
		return sess
	}
	if len(s.sessions) >= s.max {
		s.evictOldest()
	}
	sess := &session{state: domain.NewConversation()}
	s.sessions[sess.state.ID] = sess
	s.seen[sess.state.ID] = now
	return sess
}

// Len returns the number of live sessions.
func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) expire(now time.Time) {
	for id, at := range s.seen {
		if now.Sub(at) > s.ttl {
			delete(s.sessions, id)
			delete(s.seen, id)
		}
	}
}

func (s *sessionStore) evictOldest() {
	var oldest string
	var at time.Time
	for id, t := range s.seen {
		if oldest == "" || t.Before(at) {
			oldest, at = id, t
		}
	}
	delete(s.sessions, oldest)
	delete(s.seen, oldest)
}
