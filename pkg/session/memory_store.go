package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore implements Store interface using in-memory storage.
// Records are deep-copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock overrides the time source used for expiry queries
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	store := &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get retrieves a session by id
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Set stores the session under id
func (m *MemoryStore) Set(ctx context.Context, id string, session *Session) error {
	if session == nil || id == "" || session.ID != id {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[id] = session.Clone()
	return nil
}

// Remove deletes a session by id
func (m *MemoryStore) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// Clear removes all sessions
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.sessions)
	return nil
}

// GetExpiredSessions returns copies of expired sessions, oldest expiry first
func (m *MemoryStore) GetExpiredSessions(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := FilterSessions(maps.Values(m.sessions), ExpiredAt(m.now()))
	SortByExpiry(out)
	return out, nil
}

// GetUserSessions returns copies of the sessions owned by userID
func (m *MemoryStore) GetUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := FilterSessions(maps.Values(m.sessions), OwnedBy(userID))
	SortByCreation(out)
	return out, nil
}

// Stats returns memory store statistics
func (m *MemoryStore) Stats() (total, authenticated, anonymous int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total = len(m.sessions)
	for _, session := range m.sessions {
		if session.IsAuthenticated {
			authenticated++
		} else {
			anonymous++
		}
	}
	return
}
