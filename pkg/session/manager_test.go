package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

func TestNewManager(t *testing.T) {
	t.Parallel()

	_, err := session.NewManager()
	assert.ErrorIs(t, err, session.ErrNoStore)

	_, err = session.NewManager(
		session.WithStore(session.NewMemoryStore()),
		session.WithMaxAge(0),
	)
	assert.ErrorIs(t, err, session.ErrInvalidConfig)
}

func TestManager_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("anonymous session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		now := f.clock.Now()

		s, err := f.manager.Create(ctx, session.CreateParams{
			Metadata: map[string]any{"theme": "dark", "nested": []int{1}},
		})
		require.NoError(t, err)

		assert.NotEmpty(t, s.ID)
		assert.Empty(t, s.UserID)
		assert.False(t, s.IsAuthenticated)
		assert.Equal(t, now, s.CreatedAt)
		assert.Equal(t, now, s.UpdatedAt)
		assert.Equal(t, now, s.LastActivity)
		assert.Equal(t, now.Add(24*time.Hour), s.ExpiresAt)
		assert.Equal(t, map[string]any{"theme": "dark"}, s.Metadata)

		stored, err := f.store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s, stored)
		assert.Equal(t, []session.EventType{session.EventStart}, f.events.types())
	})

	t.Run("authenticated session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "u1", s.UserID)
		assert.True(t, s.IsAuthenticated)
	})

	t.Run("fingerprint sources", func(t *testing.T) {
		t.Parallel()
		probe := fingerprint.StaticProbe{UA: "agent"}
		f := newManagerFixture(t, session.WithProbe(probe))

		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)
		assert.Equal(t, fingerprint.Generate(probe), s.Fingerprint)

		s, err = f.manager.Create(fingerprint.WithContext(ctx, "from-ctx"), session.CreateParams{})
		require.NoError(t, err)
		assert.Equal(t, "from-ctx", s.Fingerprint)

		s, err = f.manager.Create(ctx, session.CreateParams{Fingerprint: "explicit"})
		require.NoError(t, err)
		assert.Equal(t, "explicit", s.Fingerprint)
	})

	t.Run("fingerprint disabled", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.FingerprintEnabled = false
		f := newManagerFixture(t, session.WithConfig(cfg))

		s, err := f.manager.Create(ctx, session.CreateParams{Fingerprint: "explicit"})
		require.NoError(t, err)
		assert.Empty(t, s.Fingerprint)
	})

	t.Run("ids are unique", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		a, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)
		b, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestManager_SessionLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects over cap", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxSessionsPerUser(2))

		for range 2 {
			_, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
			require.NoError(t, err)
		}
		_, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
		assert.ErrorIs(t, err, session.ErrSessionLimitExceeded)
		assert.NotErrorIs(t, err, session.ErrStorage)

		list, err := f.manager.UserSessions(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = f.manager.Create(ctx, session.CreateParams{UserID: "u2"})
		assert.NoError(t, err)
		_, err = f.manager.Create(ctx, session.CreateParams{})
		assert.NoError(t, err)
	})

	t.Run("expired sessions free slots", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxSessionsPerUser(1))

		_, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
		require.NoError(t, err)
		f.clock.Advance(25 * time.Hour)

		_, err = f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
		assert.NoError(t, err)
	})

	t.Run("concurrent creates respect cap", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxSessionsPerUser(3))

		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"}); err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 3, created)
	})

	t.Run("promoting to a full user is rejected", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxSessionsPerUser(1))

		_, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
		require.NoError(t, err)
		anon, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		uid := "u1"
		_, err = f.manager.Update(ctx, anon.ID, session.Update{UserID: &uid})
		assert.ErrorIs(t, err, session.ErrSessionLimitExceeded)
	})
}

type failingStore struct {
	*session.MemoryStore
	setErr error
}

func (s *failingStore) Set(ctx context.Context, id string, sess *session.Session) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, id, sess)
}

func TestManager_CreateStorageFailure(t *testing.T) {
	t.Parallel()

	store := &failingStore{
		MemoryStore: session.NewMemoryStore(),
		setErr:      &session.StorageError{Op: "set", Err: errors.New("disk full")},
	}
	rec := &recorder{}
	emitter := session.NewEmitter(nil)
	emitter.Subscribe(rec.listen)
	m, err := session.NewManager(session.WithStore(store), session.WithEmitter(emitter), session.WithConfig(testConfig()))
	require.NoError(t, err)

	s, err := m.Create(context.Background(), session.CreateParams{UserID: "u1"})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, session.ErrCreateFailed)
	assert.ErrorIs(t, err, session.ErrStorage)
	assert.Empty(t, rec.types())
}

func TestManager_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("merges metadata and bumps activity", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{Metadata: map[string]any{"a": "1", "b": "2"}})
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		updated, err := f.manager.Update(ctx, s.ID, session.Update{
			Metadata:   map[string]any{"b": "3", "c": 4, "bad": struct{}{}},
			RemoveKeys: []string{"a"},
		})
		require.NoError(t, err)

		assert.Equal(t, s.ID, updated.ID)
		assert.Equal(t, map[string]any{"b": "3", "c": float64(4)}, updated.Metadata)
		assert.Equal(t, f.clock.Now(), updated.UpdatedAt)
		assert.Equal(t, f.clock.Now(), updated.LastActivity)
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), updated.ExpiresAt)
		assert.Equal(t, s.CreatedAt, updated.CreatedAt)
		assert.Equal(t, []session.EventType{session.EventStart, session.EventUpdate}, f.events.types())
	})

	t.Run("replace metadata", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{Metadata: map[string]any{"a": "1"}})
		require.NoError(t, err)

		updated, err := f.manager.Update(ctx, s.ID, session.Update{
			Metadata:        map[string]any{"z": true},
			ReplaceMetadata: true,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"z": true}, updated.Metadata)
	})

	t.Run("without sliding expiration keeps expiry", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithSlidingExpiration(false))
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		updated, err := f.manager.Update(ctx, s.ID, session.Update{Metadata: map[string]any{"k": "v"}})
		require.NoError(t, err)
		assert.Equal(t, s.ExpiresAt, updated.ExpiresAt)
	})

	t.Run("sliding expiration revives expired record", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxAge(time.Minute))
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		updated, err := f.manager.Update(ctx, s.ID, session.Update{Metadata: map[string]any{"k": "v"}})
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now().Add(time.Minute), updated.ExpiresAt)
		assert.Equal(t, f.clock.Now(), updated.UpdatedAt)
		assert.NoError(t, session.CheckIntegrity(updated, f.clock.Now()))
	})

	t.Run("expired record without sliding keeps activity within expiry", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxAge(time.Minute), session.WithSlidingExpiration(false))
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		updated, err := f.manager.Update(ctx, s.ID, session.Update{Metadata: map[string]any{"k": "v"}})
		require.NoError(t, err)
		assert.Equal(t, s.ExpiresAt, updated.ExpiresAt)
		assert.Equal(t, s.ExpiresAt, updated.UpdatedAt)
		assert.Equal(t, s.ExpiresAt, updated.LastActivity)
		assert.Equal(t, "v", updated.Metadata["k"])
		assert.NoError(t, session.CheckIntegrity(updated, f.clock.Now()))
	})

	t.Run("authenticates anonymous session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		uid := "u7"
		updated, err := f.manager.Update(ctx, s.ID, session.Update{UserID: &uid})
		require.NoError(t, err)
		assert.Equal(t, "u7", updated.UserID)
		assert.True(t, updated.IsAuthenticated)

		list, err := f.manager.UserSessions(ctx, "u7")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, s.ID, list[0].ID)
	})

	t.Run("missing session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		_, err := f.manager.Update(ctx, "nope", session.Update{})
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		assert.Empty(t, f.events.types())
	})
}

func TestManager_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("strictly extends expiry", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(time.Millisecond)
		refreshed, err := f.manager.Refresh(ctx, s.ID)
		require.NoError(t, err)

		assert.True(t, refreshed.ExpiresAt.After(s.ExpiresAt))
		assert.True(t, refreshed.LastActivity.After(s.LastActivity))
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), refreshed.ExpiresAt)
	})

	t.Run("missing session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		_, err := f.manager.Refresh(ctx, "nope")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}

func TestManager_Extend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("adds duration", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		extended, err := f.manager.Extend(ctx, s.ID, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, s.ExpiresAt.Add(time.Hour), extended.ExpiresAt)
	})

	t.Run("zero duration", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		extended, err := f.manager.Extend(ctx, s.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, s.ExpiresAt, extended.ExpiresAt)
	})

	t.Run("negative duration", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		_, err = f.manager.Extend(ctx, s.ID, -time.Second)
		assert.ErrorIs(t, err, session.ErrInvalidDuration)
	})

	t.Run("expired record stays expired", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(48 * time.Hour)
		extended, err := f.manager.Extend(ctx, s.ID, time.Hour)
		require.NoError(t, err)
		assert.True(t, extended.IsExpiredAt(f.clock.Now()))
		assert.Equal(t, extended.ExpiresAt, extended.UpdatedAt)
		assert.Equal(t, extended.ExpiresAt, extended.LastActivity)
		assert.NoError(t, session.CheckIntegrity(extended, f.clock.Now()))

		res, err := f.manager.Validate(ctx, s.ID, "")
		require.NoError(t, err)
		assert.Equal(t, session.ReasonExpired, res.Reason)
	})

	t.Run("missing session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		_, err := f.manager.Extend(ctx, "nope", time.Hour)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}

func TestManager_Destroy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("emits expire then destroy", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		require.NoError(t, f.manager.Destroy(ctx, s.ID))

		_, err = f.store.Get(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		assert.Equal(t, []session.EventType{
			session.EventStart, session.EventExpire, session.EventDestroy,
		}, f.events.types())
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		require.NoError(t, f.manager.Destroy(ctx, s.ID))
		require.NoError(t, f.manager.Destroy(ctx, s.ID))
		require.NoError(t, f.manager.Destroy(ctx, "never-existed"))
		assert.Equal(t, 1, f.events.count(session.EventDestroy))
	})

	t.Run("naturally expired record only emits destroy", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, session.WithMaxAge(time.Minute))
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		require.NoError(t, f.manager.Destroy(ctx, s.ID))
		assert.Equal(t, []session.EventType{
			session.EventStart, session.EventDestroy,
		}, f.events.types())
	})

	t.Run("after expire skips second expire event", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		require.NoError(t, f.manager.Expire(ctx, s.ID))
		require.NoError(t, f.manager.Destroy(ctx, s.ID))
		assert.Equal(t, []session.EventType{
			session.EventStart, session.EventExpire, session.EventDestroy,
		}, f.events.types())
	})
}

func TestManager_Expire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("soft expires once", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		require.NoError(t, f.manager.Expire(ctx, s.ID))
		require.NoError(t, f.manager.Expire(ctx, s.ID))

		stored, err := f.store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now(), stored.ExpiresAt)
		assert.True(t, stored.ExpireNotified)
		assert.Equal(t, 1, f.events.count(session.EventExpire))

		res, err := f.manager.Validate(ctx, s.ID, "")
		require.NoError(t, err)
		assert.Equal(t, session.ReasonExpired, res.Reason)
	})

	t.Run("missing session is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		assert.NoError(t, f.manager.Expire(ctx, "nope"))
		assert.Empty(t, f.events.types())
	})

	t.Run("refresh revives a soft expired session", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t)
		s, err := f.manager.Create(ctx, session.CreateParams{})
		require.NoError(t, err)
		require.NoError(t, f.manager.Expire(ctx, s.ID))

		f.clock.Advance(time.Second)
		refreshed, err := f.manager.Refresh(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, refreshed.ExpireNotified)

		res, err := f.manager.Validate(ctx, s.ID, "")
		require.NoError(t, err)
		assert.True(t, res.IsValid)
	})
}

func TestManager_TerminateUserSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newManagerFixture(t, session.WithMaxSessionsPerUser(0))
	var keep *session.Session
	for i := range 4 {
		s, err := f.manager.Create(ctx, session.CreateParams{UserID: "u1"})
		require.NoError(t, err)
		if i == 0 {
			keep = s
		}
	}
	other, err := f.manager.Create(ctx, session.CreateParams{UserID: "u2"})
	require.NoError(t, err)

	n, err := f.manager.TerminateUserSessions(ctx, "u1", keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := f.manager.UserSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)

	_, err = f.manager.Get(ctx, other.ID)
	assert.NoError(t, err)

	n, err = f.manager.TerminateUserSessions(ctx, "", "")
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_Validate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newManagerFixture(t)
	s, err := f.manager.Create(ctx, session.CreateParams{Fingerprint: "fp-1"})
	require.NoError(t, err)

	res, err := f.manager.Validate(ctx, s.ID, "fp-1")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, 24*time.Hour, res.RemainingTime)

	res, err = f.manager.Validate(ctx, s.ID, "fp-2")
	require.NoError(t, err)
	assert.Equal(t, session.ReasonFingerprintMismatch, res.Reason)

	res, err = f.manager.Validate(ctx, "missing", "")
	require.NoError(t, err)
	assert.Equal(t, session.ReasonNotFound, res.Reason)

	f.clock.Advance(31 * time.Minute)
	res, err = f.manager.Validate(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, session.ReasonInactive, res.Reason)

	assert.Equal(t, 3, f.events.count(session.EventValidationFailed))
}

func TestManager_ConcurrentMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newManagerFixture(t)
	s, err := f.manager.Create(ctx, session.CreateParams{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.manager.Update(ctx, s.ID, session.Update{
				Metadata: map[string]any{fmt.Sprintf("k%02d", i): float64(i)},
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.manager.Refresh(ctx, s.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Metadata, 50, "no update was lost")
	assert.Equal(t, 100, f.events.count(session.EventUpdate))
}
