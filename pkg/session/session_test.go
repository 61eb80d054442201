package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

func TestSession_IsExpiredAt(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &session.Session{ExpiresAt: now}

	assert.True(t, s.IsExpiredAt(now), "expiry equal to now is expired")
	assert.True(t, s.IsExpiredAt(now.Add(time.Nanosecond)))
	assert.False(t, s.IsExpiredAt(now.Add(-time.Nanosecond)))

	var nilSession *session.Session
	assert.False(t, nilSession.IsExpiredAt(now))
}

func TestSession_RemainingTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &session.Session{ExpiresAt: now.Add(time.Minute)}
	assert.Equal(t, time.Minute, s.RemainingTime(now))
	assert.Zero(t, s.RemainingTime(now.Add(2*time.Minute)))
}

func TestSession_Clone(t *testing.T) {
	t.Parallel()

	s := &session.Session{ID: "a", Metadata: map[string]any{"k": "v"}}
	c := s.Clone()
	c.Metadata["k"] = "changed"
	c.ID = "b"

	assert.Equal(t, "v", s.Metadata["k"])
	assert.Equal(t, "a", s.ID)

	var nilSession *session.Session
	assert.Nil(t, nilSession.Clone())
}

func TestSession_MetadataGetters(t *testing.T) {
	t.Parallel()

	s := &session.Session{Metadata: map[string]any{
		"name":  "alice",
		"count": float64(3),
		"admin": true,
	}}

	name, ok := s.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	count, ok := s.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, 3, count)

	admin, ok := s.GetBool("admin")
	assert.True(t, ok)
	assert.True(t, admin)

	_, ok = s.GetString("count")
	assert.False(t, ok)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.True(t, (&session.Session{}).IsAnonymous())
	assert.False(t, (&session.Session{UserID: "u1"}).IsAnonymous())
}
