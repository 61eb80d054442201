package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// Service is the facade over the lifecycle manager, the cleaner and the
// event emitter. It tracks one current session for its owner and is not
// safe for concurrent use of the current-session methods.
type Service struct {
	manager  *Manager
	cleaner  *Cleaner
	security *Security
	events   *Emitter
	store    Store
	probe    fingerprint.Probe
	config   Config
	logger   *slog.Logger

	currentID string
}

// New creates a session service with the given options. Without WithStore
// an in-memory store is used, which is only allowed for the memory backend.
func New(opts ...Option) (*Service, error) {
	o := newOptions(opts)

	if o.store == nil {
		if o.config.StorageBackend != "" && o.config.StorageBackend != BackendMemory {
			return nil, errors.Join(ErrNoStore, errors.New("backend "+string(o.config.StorageBackend)+" requires WithStore"))
		}
		o.store = NewMemoryStore(WithMemoryClock(o.now))
	}

	manager, err := newManager(o)
	if err != nil {
		return nil, err
	}
	cleaner, err := newCleaner(o)
	if err != nil {
		return nil, err
	}

	return &Service{
		manager:  manager,
		cleaner:  cleaner,
		security: manager.security,
		events:   o.emitter,
		store:    o.store,
		probe:    o.probe,
		config:   o.config,
		logger:   o.logger.With(logger.Component("session.service")),
	}, nil
}

// Start launches the background cleaner when cleanup is enabled.
func (s *Service) Start(ctx context.Context) {
	s.cleaner.Start(ctx)
}

// Close stops the background cleaner.
func (s *Service) Close() error {
	s.cleaner.Stop()
	return nil
}

// Manager exposes the lifecycle manager.
func (s *Service) Manager() *Manager { return s.manager }

// Cleaner exposes the cleanup manager.
func (s *Service) Cleaner() *Cleaner { return s.cleaner }

// Security exposes the security manager.
func (s *Service) Security() *Security { return s.security }

// Store exposes the underlying store.
func (s *Service) Store() Store { return s.store }

// StartSession creates a session and makes it current.
func (s *Service) StartSession(ctx context.Context, userID string, metadata map[string]any) (*Session, error) {
	sess, err := s.manager.Create(ctx, CreateParams{
		UserID:   userID,
		Metadata: metadata,
		Probe:    s.probe,
	})
	if err != nil {
		return nil, err
	}
	s.currentID = sess.ID
	return sess, nil
}

// CurrentSessionID returns the id of the current session or an empty string.
func (s *Service) CurrentSessionID() string { return s.currentID }

// SetCurrentSession points the service at an existing session id.
func (s *Service) SetCurrentSession(id string) { s.currentID = id }

// ClearCurrentSession forgets the current session without touching storage.
func (s *Service) ClearCurrentSession() { s.currentID = "" }

// CurrentSession loads the current session.
func (s *Service) CurrentSession(ctx context.Context) (*Session, error) {
	if s.currentID == "" {
		return nil, ErrNoCurrentSession
	}
	return s.manager.Get(ctx, s.currentID)
}

// UpdateSession applies u to the current session.
func (s *Service) UpdateSession(ctx context.Context, u Update) (*Session, error) {
	if s.currentID == "" {
		return nil, ErrNoCurrentSession
	}
	return s.manager.Update(ctx, s.currentID, u)
}

// RefreshSession renews the current session.
func (s *Service) RefreshSession(ctx context.Context) (*Session, error) {
	if s.currentID == "" {
		return nil, ErrNoCurrentSession
	}
	return s.manager.Refresh(ctx, s.currentID)
}

// ExtendSession adds d to the current session's expiry.
func (s *Service) ExtendSession(ctx context.Context, d time.Duration) (*Session, error) {
	if s.currentID == "" {
		return nil, ErrNoCurrentSession
	}
	return s.manager.Extend(ctx, s.currentID, d)
}

// ExpireSession soft-expires the current session. The pointer is kept so
// validation keeps reporting the expiry.
func (s *Service) ExpireSession(ctx context.Context) error {
	if s.currentID == "" {
		return nil
	}
	return s.manager.Expire(ctx, s.currentID)
}

// DestroySession removes the current session and clears the pointer.
func (s *Service) DestroySession(ctx context.Context) error {
	if s.currentID == "" {
		return nil
	}
	if err := s.manager.Destroy(ctx, s.currentID); err != nil {
		return err
	}
	s.currentID = ""
	return nil
}

// ValidateSession validates the current session against the fingerprint
// from the context or the configured probe.
func (s *Service) ValidateSession(ctx context.Context) (ValidationResult, error) {
	return s.manager.Validate(ctx, s.currentID, s.currentFingerprint(ctx))
}

func (s *Service) currentFingerprint(ctx context.Context) string {
	if !s.security.FingerprintEnabled() {
		return ""
	}
	if fp := fingerprint.FromContext(ctx); fp != "" {
		return fp
	}
	return s.security.Fingerprint(s.probe)
}

// TerminateSession destroys any session by id.
func (s *Service) TerminateSession(ctx context.Context, id string) error {
	if err := s.manager.Destroy(ctx, id); err != nil {
		return err
	}
	if id == s.currentID {
		s.currentID = ""
	}
	return nil
}

// TerminateUserSessions destroys every session of userID except exceptID
// and returns how many were removed.
func (s *Service) TerminateUserSessions(ctx context.Context, userID, exceptID string) (int, error) {
	n, err := s.manager.TerminateUserSessions(ctx, userID, exceptID)
	if s.currentID != "" && s.currentID != exceptID {
		if _, getErr := s.store.Get(ctx, s.currentID); errors.Is(getErr, ErrSessionNotFound) {
			s.currentID = ""
		}
	}
	return n, err
}

// GetUserSessions lists the sessions owned by userID.
func (s *Service) GetUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.manager.UserSessions(ctx, userID)
}

// CleanupExpiredSessions runs a cleanup sweep immediately.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (CleanupResult, error) {
	return s.cleaner.ForceCleanup(ctx)
}

// CleanupStats reports on expired records.
func (s *Service) CleanupStats(ctx context.Context) (CleanupStats, error) {
	return s.cleaner.Stats(ctx)
}

// SetCleanupEnabled starts or stops the background cleaner.
func (s *Service) SetCleanupEnabled(enabled bool) {
	s.cleaner.SetEnabled(enabled)
}

// Subscribe registers a listener for the given event types.
func (s *Service) Subscribe(fn Listener, types ...EventType) *Subscription {
	return s.events.Subscribe(fn, types...)
}

// OnSessionStart registers fn for new sessions.
func (s *Service) OnSessionStart(fn func(ctx context.Context, sess *Session)) *Subscription {
	return s.events.Subscribe(func(ctx context.Context, e Event) { fn(ctx, e.Session) }, EventStart)
}

// OnSessionUpdate registers fn for updates, refreshes and extensions.
func (s *Service) OnSessionUpdate(fn func(ctx context.Context, sess *Session)) *Subscription {
	return s.events.Subscribe(func(ctx context.Context, e Event) { fn(ctx, e.Session) }, EventUpdate)
}

// OnSessionExpire registers fn for expiries.
func (s *Service) OnSessionExpire(fn func(ctx context.Context, sess *Session)) *Subscription {
	return s.events.Subscribe(func(ctx context.Context, e Event) { fn(ctx, e.Session) }, EventExpire)
}

// OnSessionDestroy registers fn for removals.
func (s *Service) OnSessionDestroy(fn func(ctx context.Context, id string)) *Subscription {
	return s.events.Subscribe(func(ctx context.Context, e Event) { fn(ctx, e.SessionID) }, EventDestroy)
}

// OnSessionValidationFailed registers fn for failed validations.
func (s *Service) OnSessionValidationFailed(fn func(ctx context.Context, id string, reason Reason)) *Subscription {
	return s.events.Subscribe(func(ctx context.Context, e Event) { fn(ctx, e.SessionID, e.Reason) }, EventValidationFailed)
}
