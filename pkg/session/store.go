package session

import (
	"context"
	"iter"
	"slices"
	"time"
)

// Store defines the interface for session persistence.
// Backend faults are returned as *StorageError; a missing record is
// reported as ErrSessionNotFound.
type Store interface {
	// Get retrieves a session by id
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores the full record under id, replacing any previous value
	Set(ctx context.Context, id string, s *Session) error

	// Remove deletes a session by id. Removing a missing id is not an error.
	Remove(ctx context.Context, id string) error

	// Clear removes every session owned by the store
	Clear(ctx context.Context) error

	// GetExpiredSessions returns a snapshot of records with ExpiresAt <= now
	GetExpiredSessions(ctx context.Context) ([]*Session, error)

	// GetUserSessions returns all records owned by userID
	GetUserSessions(ctx context.Context, userID string) ([]*Session, error)
}

// Predicate selects session records.
type Predicate func(s *Session) bool

// ExpiredAt matches records that are expired at now.
func ExpiredAt(now time.Time) Predicate {
	return func(s *Session) bool {
		return s.IsExpiredAt(now)
	}
}

// OwnedBy matches records that belong to userID.
func OwnedBy(userID string) Predicate {
	return func(s *Session) bool {
		return s.UserID == userID
	}
}

// FilterSessions returns deep copies of the records matching keep.
// Nil records are skipped.
func FilterSessions(all iter.Seq[*Session], keep Predicate) []*Session {
	out := make([]*Session, 0)
	for s := range all {
		if s == nil || !keep(s) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

// SortByExpiry orders sessions by expiry, oldest first.
func SortByExpiry(list []*Session) {
	slices.SortStableFunc(list, func(a, b *Session) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
}

// SortByCreation orders sessions by creation time, oldest first.
func SortByCreation(list []*Session) {
	slices.SortStableFunc(list, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
