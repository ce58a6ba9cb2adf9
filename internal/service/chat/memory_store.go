package chat

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty store; ttl <= 0 disables purging.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*chat.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load returns a copy of the stored session.
func (s *MemoryStore) Load(_ context.Context, key string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Save stores a copy of session when its Version matches the stored one.
func (s *MemoryStore) Save(_ context.Context, session *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.sessions[session.Key]; ok {
		current = existing.Version
	}
	if session.Version != current {
		return ErrVersionConflict
	}

	session.Version++
	s.sessions[session.Key] = session.Clone()
	return nil
}

// Delete removes the session; missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}

// Purge drops expired sessions.
func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, session := range s.sessions {
		if session.Expired(now, s.ttl) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many sessions are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
