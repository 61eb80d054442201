package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// CleanupResult summarizes one sweep.
type CleanupResult struct {
	Scanned  int
	Removed  int
	Retained int
	Failed   int
	// Aborted is set when the context was canceled mid-sweep
	Aborted bool
}

// CleanupStats describes the expired records currently in the store.
type CleanupStats struct {
	TotalExpired int
	// OldestExpiredAt is zero when nothing is expired
	OldestExpiredAt time.Time
	InRetention     int
}

// Cleaner periodically removes expired sessions in batches.
type Cleaner struct {
	store      Store
	events     *Emitter
	logger     *slog.Logger
	now        func() time.Time
	interval   time.Duration
	batchSize  int
	batchDelay time.Duration
	retention  time.Duration

	mu      sync.Mutex
	enabled bool
	baseCtx context.Context
	loopCtx context.Context
	cancel  context.CancelFunc

	sweepMu sync.Mutex
}

// NewCleaner creates a cleaner from the cleanup settings in Config.
func NewCleaner(opts ...Option) (*Cleaner, error) {
	return newCleaner(newOptions(opts))
}

func newCleaner(o *options) (*Cleaner, error) {
	if o.store == nil {
		return nil, ErrNoStore
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	return &Cleaner{
		store:      o.store,
		events:     o.emitter,
		logger:     o.logger.With(logger.Component("session.cleaner")),
		now:        o.now,
		interval:   o.config.CleanupInterval,
		batchSize:  o.config.CleanupBatchSize,
		batchDelay: o.config.CleanupBatchDelay,
		retention:  o.config.ExpiredSessionRetention,
		enabled:    o.config.CleanupEnabled,
	}, nil
}

// Start launches the background loop if cleanup is enabled. The loop ends
// when ctx is done or Stop is called. While a loop is running Start does
// nothing and ctx is ignored; once the loop has ended Start may be called
// again with a fresh context.
func (c *Cleaner) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runningLocked() {
		return
	}
	c.baseCtx = ctx
	if c.enabled {
		c.startLocked()
	}
}

// Stop cancels the loop without waiting for an in-flight sweep.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Running reports whether the background loop is active.
func (c *Cleaner) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

func (c *Cleaner) runningLocked() bool {
	return c.cancel != nil && c.loopCtx.Err() == nil
}

// SetEnabled toggles the background loop at runtime. Enabling before Start
// only records the setting. Re-enabling reuses the context of the last Start.
func (c *Cleaner) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if !enabled {
		c.stopLocked()
		return
	}
	if c.baseCtx != nil {
		c.startLocked()
	}
}

func (c *Cleaner) startLocked() {
	if c.runningLocked() {
		return
	}
	c.stopLocked()
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.loopCtx = ctx
	c.cancel = cancel
	go c.loop(ctx)
}

func (c *Cleaner) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.loopCtx = nil
}

// release clears the loop state when the loop ended on its own,
// for example because the context given to Start was canceled.
func (c *Cleaner) release(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loopCtx == ctx {
		c.stopLocked()
	}
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.release(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := time.Now()
			res, err := c.sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.ErrorContext(ctx, "session cleanup failed", logger.Error(err))
				}
				continue
			}
			if res.Removed > 0 || res.Failed > 0 {
				c.logger.InfoContext(ctx, "session cleanup completed",
					logger.Count("removed", res.Removed),
					logger.Count("retained", res.Retained),
					logger.Count("failed", res.Failed),
					logger.Duration(time.Since(started)),
				)
			}
		}
	}
}

// ForceCleanup runs a sweep immediately.
func (c *Cleaner) ForceCleanup(ctx context.Context) (CleanupResult, error) {
	return c.sweep(ctx)
}

// Stats reports on expired records without removing anything.
func (c *Cleaner) Stats(ctx context.Context) (CleanupStats, error) {
	expired, err := c.store.GetExpiredSessions(ctx)
	if err != nil {
		return CleanupStats{}, err
	}

	now := c.now()
	stats := CleanupStats{TotalExpired: len(expired)}
	for _, s := range expired {
		if stats.OldestExpiredAt.IsZero() || s.ExpiresAt.Before(stats.OldestExpiredAt) {
			stats.OldestExpiredAt = s.ExpiresAt
		}
		if c.retained(s, now) {
			stats.InRetention++
		}
	}
	return stats, nil
}

func (c *Cleaner) retained(s *Session, now time.Time) bool {
	return c.retention > 0 && now.Sub(s.ExpiresAt) < c.retention
}

// sweep removes expired records past retention. Sweeps never overlap so an
// expire event is not emitted twice for the same record.
func (c *Cleaner) sweep(ctx context.Context) (CleanupResult, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	var res CleanupResult
	expired, err := c.store.GetExpiredSessions(ctx)
	if err != nil {
		return res, err
	}
	res.Scanned = len(expired)
	now := c.now()

	for start := 0; start < len(expired); start += c.batchSize {
		if start > 0 && c.batchDelay > 0 {
			timer := time.NewTimer(c.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				res.Aborted = true
				return res, ctx.Err()
			case <-timer.C:
			}
		}

		end := min(start+c.batchSize, len(expired))
		for _, s := range expired[start:end] {
			if err := ctx.Err(); err != nil {
				res.Aborted = true
				return res, err
			}
			if c.retained(s, now) {
				res.Retained++
				continue
			}
			if err := c.store.Remove(ctx, s.ID); err != nil {
				res.Failed++
				c.logger.WarnContext(ctx, "failed to remove expired session",
					logger.SessionID(s.ID),
					logger.Error(err),
				)
				continue
			}
			res.Removed++
			if !s.ExpireNotified {
				c.events.Emit(ctx, Event{
					Type:      EventExpire,
					SessionID: s.ID,
					Session:   s,
				})
			}
		}
	}

	return res, nil
}
