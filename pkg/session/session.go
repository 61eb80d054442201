package session

import (
	"maps"
	"time"
)

// Session represents a single session record.
type Session struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id,omitempty"`
	IsAuthenticated bool           `json:"is_authenticated"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	LastActivity    time.Time      `json:"last_activity"`
	ExpiresAt       time.Time      `json:"expires_at"`
	Metadata        map[string]any `json:"metadata"`
	Fingerprint     string         `json:"fingerprint,omitempty"`
	// ExpireNotified is set once an expire event has been emitted for the record.
	ExpireNotified bool `json:"expire_notified,omitempty"`
}

// IsAnonymous returns true if the session is not bound to a user.
func (s *Session) IsAnonymous() bool {
	return s == nil || s.UserID == ""
}

// IsExpiredAt reports whether the session is expired at the given instant.
// A record whose expiry equals now is already expired.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return s != nil && !now.Before(s.ExpiresAt)
}

// RemainingTime returns the time left until expiry, never negative.
func (s *Session) RemainingTime(now time.Time) time.Duration {
	if s == nil || s.IsExpiredAt(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Metadata != nil {
		c.Metadata = maps.Clone(s.Metadata)
	}
	return &c
}

// Get retrieves a value from session metadata
func (s *Session) Get(key string) (any, bool) {
	if s == nil || s.Metadata == nil {
		return nil, false
	}
	val, ok := s.Metadata[key]
	return val, ok
}

// GetString retrieves a string value from session metadata
func (s *Session) GetString(key string) (string, bool) {
	val, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetFloat retrieves a numeric value from session metadata
func (s *Session) GetFloat(key string) (float64, bool) {
	val, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := val.(float64)
	return f, ok
}

// GetInt retrieves a numeric value from session metadata truncated to int
func (s *Session) GetInt(key string) (int, bool) {
	f, ok := s.GetFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// GetBool retrieves a bool value from session metadata
func (s *Session) GetBool(key string) (bool, bool) {
	val, ok := s.Get(key)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}
