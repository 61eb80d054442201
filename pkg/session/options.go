package session

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// Option is a functional option shared by New, NewManager and NewCleaner
type Option func(*options)

type options struct {
	config   Config
	store    Store
	logger   *slog.Logger
	probe    fingerprint.Probe
	now      func() time.Time
	emitter  *Emitter
	security *Security
}

func newOptions(opts []Option) *options {
	o := &options{
		config: DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	if o.emitter == nil {
		o.emitter = NewEmitter(o.logger)
	}
	return o
}

// securityFor returns the configured Security or builds one from the config.
func (o *options) securityFor() (*Security, error) {
	if o.security != nil {
		return o.security, nil
	}
	sec, err := NewSecurity(o.config, o.logger)
	if err != nil {
		return nil, err
	}
	sec.now = o.now
	o.security = sec
	return sec, nil
}

// WithStore sets a custom session store
func WithStore(store Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithConfig sets custom configuration
func WithConfig(config Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithProbe sets the environment probe used to fingerprint new sessions
func WithProbe(p fingerprint.Probe) Option {
	return func(o *options) {
		o.probe = p
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithEmitter shares an event emitter between components
func WithEmitter(e *Emitter) Option {
	return func(o *options) {
		o.emitter = e
	}
}

// WithSecurity shares a security manager between components
func WithSecurity(s *Security) Option {
	return func(o *options) {
		o.security = s
	}
}

// WithMaxAge sets the session lifetime
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		o.config.MaxAge = d
	}
}

// WithMaxInactivity sets the idle limit
func WithMaxInactivity(d time.Duration) Option {
	return func(o *options) {
		o.config.MaxInactivity = d
	}
}

// WithSlidingExpiration toggles expiry renewal on update
func WithSlidingExpiration(enabled bool) Option {
	return func(o *options) {
		o.config.SlidingExpiration = enabled
	}
}

// WithMaxSessionsPerUser sets the per-user cap
func WithMaxSessionsPerUser(n int) Option {
	return func(o *options) {
		o.config.MaxSessionsPerUser = n
	}
}

// WithCleanupInterval sets the cleanup interval for expired sessions
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *options) {
		o.config.CleanupInterval = interval
	}
}

// WithExpiredSessionRetention keeps expired records for d before removal
func WithExpiredSessionRetention(d time.Duration) Option {
	return func(o *options) {
		o.config.ExpiredSessionRetention = d
	}
}
