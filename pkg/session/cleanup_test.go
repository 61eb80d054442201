package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

type cleanerFixture struct {
	managerFixture
	cleaner *session.Cleaner
}

func newCleanerFixture(t *testing.T, mutate func(*session.Config)) cleanerFixture {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := newManagerFixture(t, session.WithConfig(cfg))
	c, err := session.NewCleaner(
		session.WithConfig(cfg),
		session.WithStore(f.store),
		session.WithClock(f.clock.Now),
		session.WithEmitter(f.manager.Events()),
	)
	require.NoError(t, err)
	return cleanerFixture{managerFixture: f, cleaner: c}
}

func (f cleanerFixture) createN(t *testing.T, n int) []*session.Session {
	t.Helper()
	out := make([]*session.Session, 0, n)
	for range n {
		s, err := f.manager.Create(context.Background(), session.CreateParams{})
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestCleaner_ForceCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("removes expired sessions and emits expire", func(t *testing.T) {
		t.Parallel()
		f := newCleanerFixture(t, nil)
		f.createN(t, 3)
		f.clock.Advance(25 * time.Hour)
		live := f.createN(t, 1)[0]

		res, err := f.cleaner.ForceCleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, session.CleanupResult{Scanned: 3, Removed: 3}, res)
		assert.Equal(t, 3, f.events.count(session.EventExpire))

		total, _, _ := f.store.Stats()
		assert.Equal(t, 1, total)
		_, err = f.store.Get(ctx, live.ID)
		assert.NoError(t, err)
	})

	t.Run("does not re-emit for soft expired sessions", func(t *testing.T) {
		t.Parallel()
		f := newCleanerFixture(t, nil)
		s := f.createN(t, 1)[0]
		require.NoError(t, f.manager.Expire(ctx, s.ID))

		res, err := f.cleaner.ForceCleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Removed)
		assert.Equal(t, 1, f.events.count(session.EventExpire))
	})

	t.Run("processes several batches", func(t *testing.T) {
		t.Parallel()
		f := newCleanerFixture(t, func(c *session.Config) {
			c.CleanupBatchSize = 2
			c.CleanupBatchDelay = time.Millisecond
		})
		f.createN(t, 5)
		f.clock.Advance(25 * time.Hour)

		res, err := f.cleaner.ForceCleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Removed)
	})

	t.Run("retention keeps recently expired", func(t *testing.T) {
		t.Parallel()
		f := newCleanerFixture(t, func(c *session.Config) {
			c.ExpiredSessionRetention = time.Hour
		})
		old := f.createN(t, 1)[0]
		f.clock.Advance(30 * time.Minute)
		recent := f.createN(t, 1)[0]
		f.clock.Advance(24*time.Hour + 40*time.Minute)

		stats, err := f.cleaner.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalExpired)
		assert.Equal(t, 1, stats.InRetention)
		assert.Equal(t, old.ExpiresAt, stats.OldestExpiredAt)

		res, err := f.cleaner.ForceCleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Removed)
		assert.Equal(t, 1, res.Retained)

		_, err = f.store.Get(ctx, recent.ID)
		assert.NoError(t, err)
		_, err = f.store.Get(ctx, old.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("canceled context aborts", func(t *testing.T) {
		t.Parallel()
		f := newCleanerFixture(t, nil)
		f.createN(t, 2)
		f.clock.Advance(25 * time.Hour)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := f.cleaner.ForceCleanup(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, res.Aborted)
		assert.Zero(t, res.Removed)
	})

	t.Run("failed removal does not stop the sweep", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := &flakyRemoveStore{MemoryStore: session.NewMemoryStore(session.WithMemoryClock(clock.Now))}
		m, err := session.NewManager(session.WithConfig(testConfig()), session.WithStore(store), session.WithClock(clock.Now))
		require.NoError(t, err)
		c, err := session.NewCleaner(session.WithConfig(testConfig()), session.WithStore(store), session.WithClock(clock.Now))
		require.NoError(t, err)

		first, err := m.Create(ctx, session.CreateParams{})
		require.NoError(t, err)
		clock.Advance(time.Second)
		_, err = m.Create(ctx, session.CreateParams{})
		require.NoError(t, err)
		store.failID = first.ID
		clock.Advance(25 * time.Hour)

		res, err := c.ForceCleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, 1, res.Removed)
	})
}

type flakyRemoveStore struct {
	*session.MemoryStore
	failID string
}

func (s *flakyRemoveStore) Remove(ctx context.Context, id string) error {
	if id == s.failID {
		return &session.StorageError{Op: "remove", SessionID: id, Err: errors.New("timeout")}
	}
	return s.MemoryStore.Remove(ctx, id)
}

func TestCleaner_StartStop(t *testing.T) {
	t.Parallel()

	f := newCleanerFixture(t, func(c *session.Config) {
		c.CleanupEnabled = true
		c.CleanupInterval = 10 * time.Millisecond
	})
	f.createN(t, 2)
	f.clock.Advance(25 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.cleaner.Start(ctx)
	f.cleaner.Start(ctx)
	assert.True(t, f.cleaner.Running())

	assert.Eventually(t, func() bool {
		total, _, _ := f.store.Stats()
		return total == 0
	}, time.Second, 5*time.Millisecond)

	f.cleaner.Stop()
	f.cleaner.Stop()
	assert.False(t, f.cleaner.Running())

	f.cleaner.SetEnabled(true)
	assert.True(t, f.cleaner.Running())
	f.cleaner.SetEnabled(false)
	assert.False(t, f.cleaner.Running())
}

func TestCleaner_RestartAfterContextCanceled(t *testing.T) {
	t.Parallel()

	f := newCleanerFixture(t, func(c *session.Config) {
		c.CleanupEnabled = true
		c.CleanupInterval = 10 * time.Millisecond
	})

	first, cancel := context.WithCancel(context.Background())
	f.cleaner.Start(first)
	require.True(t, f.cleaner.Running())
	cancel()
	assert.False(t, f.cleaner.Running())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	f.cleaner.Start(ctx)
	require.True(t, f.cleaner.Running())

	f.createN(t, 2)
	f.clock.Advance(25 * time.Hour)
	assert.Eventually(t, func() bool {
		total, _, _ := f.store.Stats()
		return total == 0
	}, time.Second, 5*time.Millisecond)

	f.cleaner.SetEnabled(false)
	f.cleaner.SetEnabled(true)
	assert.True(t, f.cleaner.Running())
	f.cleaner.Stop()
}

func TestCleaner_StartIgnoresContextWhileRunning(t *testing.T) {
	t.Parallel()

	f := newCleanerFixture(t, func(c *session.Config) {
		c.CleanupEnabled = true
		c.CleanupInterval = 10 * time.Millisecond
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	f.cleaner.Start(ctx)

	other, cancel := context.WithCancel(context.Background())
	f.cleaner.Start(other)
	cancel()
	assert.True(t, f.cleaner.Running())

	f.cleaner.Stop()
	assert.False(t, f.cleaner.Running())
}

func TestCleaner_DisabledStart(t *testing.T) {
	t.Parallel()

	f := newCleanerFixture(t, nil)
	f.cleaner.Start(context.Background())
	assert.False(t, f.cleaner.Running())

	f.cleaner.SetEnabled(true)
	assert.True(t, f.cleaner.Running())
	f.cleaner.Stop()
}

func TestCleaner_SetEnabledBeforeStart(t *testing.T) {
	t.Parallel()

	f := newCleanerFixture(t, nil)
	f.cleaner.SetEnabled(true)
	assert.False(t, f.cleaner.Running())

	f.cleaner.Start(context.Background())
	assert.True(t, f.cleaner.Running())
	f.cleaner.Stop()
}
