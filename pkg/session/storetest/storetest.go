// Package storetest holds the behavioural checks every session.Store
// implementation must pass. Backend packages call Run from their tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Factory returns an empty store whose expiry queries use now.
type Factory func(t *testing.T, now func() time.Time) session.Store

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at a fixed instant with a sub-millisecond offset
// so millisecond index rounding is exercised.
func NewClock() *Clock {
	return &Clock{t: time.Date(2025, 3, 1, 12, 0, 0, 400_000, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Record builds a well formed session expiring ttl after now.
func Record(id, userID string, now time.Time, ttl time.Duration) *session.Session {
	return &session.Session{
		ID:              id,
		UserID:          userID,
		IsAuthenticated: userID != "",
		CreatedAt:       now,
		UpdatedAt:       now,
		LastActivity:    now,
		ExpiresAt:       now.Add(ttl),
		Metadata:        map[string]any{"plan": "pro", "seats": float64(3), "beta": true, "note": nil},
		Fingerprint:     "0123456789abcdef0123456789abcdef",
	}
}

// AssertSame compares two records field by field, timestamps by instant.
func AssertSame(t *testing.T, want, got *session.Session) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.IsAuthenticated, got.IsAuthenticated)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %s != %s", want.UpdatedAt, got.UpdatedAt)
	assert.True(t, want.LastActivity.Equal(got.LastActivity), "last_activity %s != %s", want.LastActivity, got.LastActivity)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at %s != %s", want.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, want.Metadata, got.Metadata)
	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	assert.Equal(t, want.ExpireNotified, got.ExpireNotified)
}

func ids(list []*session.Session) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

// Run executes the shared store checks. Subtests run sequentially on a
// fresh store each.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	fresh := func(t *testing.T) (session.Store, *Clock) {
		t.Helper()
		clock := NewClock()
		store := factory(t, clock.Now)
		require.NoError(t, store.Clear(ctx))
		return store, clock
	}

	t.Run("get missing", func(t *testing.T) {
		store, _ := fresh(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		assert.NotErrorIs(t, err, session.ErrStorage)
	})

	t.Run("round trip", func(t *testing.T) {
		store, clock := fresh(t)
		in := Record("round-trip", "u1", clock.Now().Add(123*time.Nanosecond), time.Hour)
		in.ExpireNotified = true
		require.NoError(t, store.Set(ctx, in.ID, in))

		out, err := store.Get(ctx, in.ID)
		require.NoError(t, err)
		AssertSame(t, in, out)
	})

	t.Run("overwrite", func(t *testing.T) {
		store, clock := fresh(t)
		in := Record("overwrite", "", clock.Now(), time.Hour)
		require.NoError(t, store.Set(ctx, in.ID, in))

		in.Metadata = map[string]any{"only": "this"}
		in.ExpiresAt = in.ExpiresAt.Add(time.Hour)
		require.NoError(t, store.Set(ctx, in.ID, in))

		out, err := store.Get(ctx, in.ID)
		require.NoError(t, err)
		AssertSame(t, in, out)
	})

	t.Run("invalid input", func(t *testing.T) {
		store, clock := fresh(t)
		assert.ErrorIs(t, store.Set(ctx, "a", nil), session.ErrInvalidSession)
		assert.ErrorIs(t, store.Set(ctx, "a", Record("b", "", clock.Now(), time.Hour)), session.ErrInvalidSession)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		store, clock := fresh(t)
		in := Record("remove", "u1", clock.Now(), time.Hour)
		require.NoError(t, store.Set(ctx, in.ID, in))

		require.NoError(t, store.Remove(ctx, in.ID))
		require.NoError(t, store.Remove(ctx, in.ID))
		require.NoError(t, store.Remove(ctx, "never-existed"))

		_, err := store.Get(ctx, in.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)

		list, err := store.GetUserSessions(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("expired sessions", func(t *testing.T) {
		store, clock := fresh(t)
		now := clock.Now()

		require.NoError(t, store.Set(ctx, "old", Record("old", "u1", now.Add(-3*time.Hour), time.Hour)))
		require.NoError(t, store.Set(ctx, "older", Record("older", "", now.Add(-4*time.Hour), time.Hour)))
		require.NoError(t, store.Set(ctx, "live", Record("live", "u1", now, time.Hour)))

		// Same millisecond as now but still in the future.
		soon := Record("soon", "", now.Add(-time.Hour), time.Hour+100*time.Microsecond)
		require.NoError(t, store.Set(ctx, "soon", soon))

		boundary := Record("boundary", "", now.Add(-time.Hour), time.Hour)
		require.NoError(t, store.Set(ctx, "boundary", boundary))

		expired, err := store.GetExpiredSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"older", "old", "boundary"}, ids(expired))

		clock.Advance(time.Millisecond)
		expired, err = store.GetExpiredSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"older", "old", "boundary", "soon"}, ids(expired))
	})

	t.Run("user sessions", func(t *testing.T) {
		store, clock := fresh(t)
		now := clock.Now()

		require.NoError(t, store.Set(ctx, "a", Record("a", "u1", now, time.Hour)))
		require.NoError(t, store.Set(ctx, "b", Record("b", "u1", now.Add(time.Second), time.Hour)))
		require.NoError(t, store.Set(ctx, "c", Record("c", "u2", now, time.Hour)))
		require.NoError(t, store.Set(ctx, "d", Record("d", "", now, time.Hour)))

		list, err := store.GetUserSessions(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(list))

		list, err = store.GetUserSessions(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, list)

		moved := Record("d", "u2", now.Add(2*time.Second), time.Hour)
		require.NoError(t, store.Set(ctx, "d", moved))
		list, err = store.GetUserSessions(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, ids(list))
	})

	t.Run("clear", func(t *testing.T) {
		store, clock := fresh(t)
		require.NoError(t, store.Set(ctx, "a", Record("a", "u1", clock.Now(), time.Hour)))
		require.NoError(t, store.Set(ctx, "b", Record("b", "", clock.Now(), -time.Hour)))

		require.NoError(t, store.Clear(ctx))

		_, err := store.Get(ctx, "a")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		expired, err := store.GetExpiredSessions(ctx)
		require.NoError(t, err)
		assert.Empty(t, expired)
		list, err := store.GetUserSessions(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("returned records are detached", func(t *testing.T) {
		store, clock := fresh(t)
		in := Record("detached", "", clock.Now(), time.Hour)
		require.NoError(t, store.Set(ctx, in.ID, in))

		out, err := store.Get(ctx, in.ID)
		require.NoError(t, err)
		out.Metadata["plan"] = "changed"

		again, err := store.Get(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, "pro", again.Metadata["plan"])
	})
}
