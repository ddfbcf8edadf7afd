package mqtt

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps session state in a map. It is the default
// store: state survives reconnects within one process and nothing more.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*SessionState),
	}
}

// Save creates or replaces the state for its client ID.
func (s *MemorySessionStore) Save(_ context.Context, state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ClientID] = state
	return nil
}

// Load retrieves state by client ID.
func (s *MemorySessionStore) Load(_ context.Context, clientID string) (*SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[clientID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

// Delete removes state by client ID.
func (s *MemorySessionStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, clientID)
	return nil
}

// List returns every stored client ID.
func (s *MemorySessionStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Cleanup removes expired state.
func (s *MemorySessionStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for id, state := range s.sessions {
		if state.Expired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// Count returns the number of stored sessions.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}
