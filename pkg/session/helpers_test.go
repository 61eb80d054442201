package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects events in emission order.
type recorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recorder) listen(_ context.Context, e session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []session.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) count(t session.EventType) int {
	n := 0
	for _, et := range r.types() {
		if et == t {
			n++
		}
	}
	return n
}

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.CleanupEnabled = false
	cfg.CleanupBatchDelay = 0
	return cfg
}

type managerFixture struct {
	manager *session.Manager
	store   *session.MemoryStore
	clock   *fakeClock
	events  *recorder
}

func newManagerFixture(t *testing.T, opts ...session.Option) managerFixture {
	t.Helper()

	clock := newFakeClock()
	store := session.NewMemoryStore(session.WithMemoryClock(clock.Now))
	emitter := session.NewEmitter(nil)
	rec := &recorder{}
	emitter.Subscribe(rec.listen)

	base := []session.Option{
		session.WithConfig(testConfig()),
		session.WithStore(store),
		session.WithClock(clock.Now),
		session.WithEmitter(emitter),
	}
	m, err := session.NewManager(append(base, opts...)...)
	require.NoError(t, err)

	return managerFixture{manager: m, store: store, clock: clock, events: rec}
}
