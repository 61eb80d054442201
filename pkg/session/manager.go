package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// Manager owns the session state machine. It keeps no cached copies:
// every transition reads the record, computes the new state and writes it back.
type Manager struct {
	store     Store
	security  *Security
	validator Validator
	events    *Emitter
	config    Config
	probe     fingerprint.Probe
	locks     *keyMutex
	now       func() time.Time
	logger    *slog.Logger
}

// CreateParams describes a new session.
type CreateParams struct {
	UserID   string
	Metadata map[string]any
	// Fingerprint overrides the fingerprint taken from the context or probe
	Fingerprint string
	// Probe overrides the manager's probe for this session
	Probe fingerprint.Probe
}

// Update describes a partial change. Nil pointers leave fields untouched.
type Update struct {
	// Metadata is merged into the existing metadata unless ReplaceMetadata is set
	Metadata        map[string]any
	ReplaceMetadata bool
	RemoveKeys      []string
	UserID          *string
	// IsAuthenticated defaults to UserID != "" when only UserID changes
	IsAuthenticated *bool
	Fingerprint     *string
}

// NewManager creates a lifecycle manager. A store is required.
func NewManager(opts ...Option) (*Manager, error) {
	return newManager(newOptions(opts))
}

func newManager(o *options) (*Manager, error) {
	if o.store == nil {
		return nil, ErrNoStore
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	sec, err := o.securityFor()
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:     o.store,
		security:  sec,
		validator: NewValidator(o.config),
		events:    o.emitter,
		config:    o.config,
		probe:     o.probe,
		locks:     newKeyMutex(),
		now:       o.now,
		logger:    o.logger.With(logger.Component("session.manager")),
	}, nil
}

// Events returns the emitter transitions are published on.
func (m *Manager) Events() *Emitter { return m.events }

// Create starts a new session. Authenticated sessions are checked against
// the per-user cap atomically with the insert.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Session, error) {
	if p.UserID != "" {
		unlock := m.locks.Lock(userLockKey(p.UserID))
		defer unlock()

		existing, err := m.store.GetUserSessions(ctx, p.UserID)
		if err != nil {
			return nil, errors.Join(ErrCreateFailed, err)
		}
		if !m.security.CheckSessionLimits(existing) {
			m.logger.WarnContext(ctx, "session limit reached",
				logger.UserID(p.UserID),
				logger.Count("sessions", len(existing)),
			)
			return nil, ErrSessionLimitExceeded
		}
	}

	now := m.now()
	s := &Session{
		ID:              m.security.GenerateID(),
		UserID:          p.UserID,
		IsAuthenticated: p.UserID != "",
		CreatedAt:       now,
		UpdatedAt:       now,
		LastActivity:    now,
		ExpiresAt:       now.Add(m.config.MaxAge),
		Metadata:        m.security.SanitizeMetadata(p.Metadata),
		Fingerprint:     m.resolveFingerprint(ctx, p),
	}

	if err := m.store.Set(ctx, s.ID, s); err != nil {
		return nil, errors.Join(ErrCreateFailed, err)
	}

	m.emit(ctx, EventStart, s)
	return s, nil
}

func (m *Manager) resolveFingerprint(ctx context.Context, p CreateParams) string {
	if !m.security.FingerprintEnabled() {
		return ""
	}
	if p.Fingerprint != "" {
		return p.Fingerprint
	}
	if fp := fingerprint.FromContext(ctx); fp != "" {
		return fp
	}
	if p.Probe != nil {
		return m.security.Fingerprint(p.Probe)
	}
	return m.security.Fingerprint(m.probe)
}

// Update applies a partial change and bumps activity. With sliding
// expiration the expiry is renewed as well, which revives an expired record.
// Without it, activity on an expired record is capped at its expiry.
func (m *Manager) Update(ctx context.Context, id string, u Update) (*Session, error) {
	s, err := m.mutate(ctx, id, func(s *Session, now time.Time) error {
		if u.UserID != nil && *u.UserID != s.UserID {
			if err := m.checkOwnerChange(ctx, id, *u.UserID); err != nil {
				return err
			}
			s.UserID = *u.UserID
			s.IsAuthenticated = s.UserID != ""
		}
		if u.IsAuthenticated != nil {
			s.IsAuthenticated = *u.IsAuthenticated
		}
		if u.Fingerprint != nil {
			s.Fingerprint = *u.Fingerprint
		}

		merged := make(map[string]any, len(s.Metadata)+len(u.Metadata))
		if !u.ReplaceMetadata {
			maps.Copy(merged, s.Metadata)
		}
		maps.Copy(merged, u.Metadata)
		for _, k := range u.RemoveKeys {
			delete(merged, k)
		}
		s.Metadata = m.security.SanitizeMetadata(merged)

		if m.config.SlidingExpiration {
			s.ExpiresAt = now.Add(m.config.MaxAge)
			s.ExpireNotified = false
		}
		touch(s, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, EventUpdate, s)
	return s, nil
}

// checkOwnerChange enforces the cap when a session moves to another user.
func (m *Manager) checkOwnerChange(ctx context.Context, id, userID string) error {
	if userID == "" {
		return nil
	}
	unlock := m.locks.Lock(userLockKey(userID))
	defer unlock()

	existing, err := m.store.GetUserSessions(ctx, userID)
	if err != nil {
		return err
	}
	others := make([]*Session, 0, len(existing))
	for _, s := range existing {
		if s.ID != id {
			others = append(others, s)
		}
	}
	if !m.security.CheckSessionLimits(others) {
		return ErrSessionLimitExceeded
	}
	return nil
}

// Refresh records activity and grants a full MaxAge from now.
func (m *Manager) Refresh(ctx context.Context, id string) (*Session, error) {
	s, err := m.mutate(ctx, id, func(s *Session, now time.Time) error {
		s.UpdatedAt = now
		s.LastActivity = now
		s.ExpiresAt = now.Add(m.config.MaxAge)
		s.ExpireNotified = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, EventUpdate, s)
	return s, nil
}

// Extend pushes the expiry out by d and records activity.
// An expired record stays expired if the extension does not reach past now;
// its activity is then capped at the new expiry.
func (m *Manager) Extend(ctx context.Context, id string, d time.Duration) (*Session, error) {
	if d < 0 {
		return nil, ErrInvalidDuration
	}

	s, err := m.mutate(ctx, id, func(s *Session, now time.Time) error {
		s.ExpiresAt = s.ExpiresAt.Add(d)
		if !s.IsExpiredAt(now) {
			s.ExpireNotified = false
		}
		touch(s, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, EventUpdate, s)
	return s, nil
}

// Expire marks the session expired without removing it. The expire event
// fires once per record; a missing or already expired id is a no-op.
func (m *Manager) Expire(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.ExpireNotified {
		return nil
	}

	now := m.now()
	if now.Before(s.ExpiresAt) {
		s.ExpiresAt = now
		s.UpdatedAt = now
	}
	s.ExpireNotified = true

	if err := m.store.Set(ctx, id, s); err != nil {
		return err
	}

	m.emit(ctx, EventExpire, s)
	return nil
}

// Destroy removes the session. A live record gets an expire event before the
// destroy event; records already past their expiry only get destroy.
// Missing ids are ignored.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.store.Remove(ctx, id); err != nil {
		return err
	}

	if !s.ExpireNotified && !s.IsExpiredAt(m.now()) {
		m.emit(ctx, EventExpire, s)
	}
	m.emit(ctx, EventDestroy, s)
	return nil
}

// TerminateUserSessions destroys every session of userID except exceptID.
// Failures do not stop the batch; they are joined into the returned error.
func (m *Manager) TerminateUserSessions(ctx context.Context, userID, exceptID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	sessions, err := m.store.GetUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	var errs []error
	terminated := 0
	for _, s := range sessions {
		if s.ID == exceptID {
			continue
		}
		if err := m.Destroy(ctx, s.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		terminated++
	}

	if terminated > 0 {
		m.logger.InfoContext(ctx, "user sessions terminated",
			logger.UserID(userID),
			logger.Count("terminated", terminated),
		)
	}
	return terminated, errors.Join(errs...)
}

// Get returns the stored record without validating it.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// UserSessions returns every record owned by userID.
func (m *Manager) UserSessions(ctx context.Context, userID string) ([]*Session, error) {
	return m.store.GetUserSessions(ctx, userID)
}

// Validate loads and validates a session. A failing result is published
// as a validation_failed event; the error is reserved for storage faults.
func (m *Manager) Validate(ctx context.Context, id, currentFingerprint string) (ValidationResult, error) {
	var s *Session
	if id != "" {
		var err error
		s, err = m.store.Get(ctx, id)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return ValidationResult{}, err
		}
	}

	res := m.validator.ValidateAt(s, currentFingerprint, m.now())
	if !res.IsValid {
		m.logger.DebugContext(ctx, "session validation failed",
			logger.SessionID(id),
			logger.Reason(string(res.Reason)),
		)
		m.events.Emit(ctx, Event{
			Type:      EventValidationFailed,
			SessionID: id,
			Session:   s,
			Reason:    res.Reason,
		})
	}
	return res, nil
}

// mutate runs fn under the per-id lock between a read and a write.
func (m *Manager) mutate(ctx context.Context, id string, fn func(s *Session, now time.Time) error) (*Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(s, m.now()); err != nil {
		return nil, err
	}
	s.ID = id

	if err := m.store.Set(ctx, id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// touch records activity at now, capped at the expiry so that
// UpdatedAt and LastActivity never pass ExpiresAt.
func touch(s *Session, now time.Time) {
	at := now
	if at.After(s.ExpiresAt) {
		at = s.ExpiresAt
	}
	if at.After(s.UpdatedAt) {
		s.UpdatedAt = at
	}
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
}

func (m *Manager) emit(ctx context.Context, t EventType, s *Session) {
	m.events.Emit(ctx, Event{
		Type:      t,
		SessionID: s.ID,
		Session:   s,
	})
}
