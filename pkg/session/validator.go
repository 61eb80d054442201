package session

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/sanitizer"
)

// Reason explains why a session failed validation.
type Reason string

const (
	ReasonNotFound            Reason = "not_found"
	ReasonExpired             Reason = "expired"
	ReasonInvalidFormat       Reason = "invalid_format"
	ReasonFingerprintMismatch Reason = "fingerprint_mismatch"
	ReasonTampered            Reason = "tampered"
	ReasonInactive            Reason = "inactive"
)

// ValidationResult is the outcome of a validation. Reason is empty when valid.
type ValidationResult struct {
	IsValid       bool
	Reason        Reason
	RemainingTime time.Duration
}

// Err converts a failing result into a *ValidationError. Valid results return nil.
func (r ValidationResult) Err(sessionID string) error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{SessionID: sessionID, Reason: r.Reason}
}

// Validator decides whether a session record is usable. It has no side effects.
type Validator struct {
	FingerprintEnabled     bool
	TamperDetectionEnabled bool
	// MaxInactivity of zero disables the idle check
	MaxInactivity time.Duration
}

// NewValidator builds a validator from the session configuration.
func NewValidator(cfg Config) Validator {
	return Validator{
		FingerprintEnabled:     cfg.FingerprintEnabled,
		TamperDetectionEnabled: cfg.TamperDetectionEnabled,
		MaxInactivity:          cfg.MaxInactivity,
	}
}

// Validate checks s against the current wall clock.
func (v Validator) Validate(s *Session, currentFingerprint string) ValidationResult {
	return v.ValidateAt(s, currentFingerprint, time.Now())
}

// ValidateAt runs the checks in order and reports the first failure.
// An empty currentFingerprint skips the fingerprint check.
func (v Validator) ValidateAt(s *Session, currentFingerprint string, now time.Time) ValidationResult {
	if s == nil {
		return invalid(ReasonNotFound)
	}
	if s.IsExpiredAt(now) {
		return invalid(ReasonExpired)
	}
	if !wellFormed(s) {
		return invalid(ReasonInvalidFormat)
	}
	if v.FingerprintEnabled && currentFingerprint != "" &&
		!fingerprint.Validate(s.Fingerprint, currentFingerprint) {
		return invalid(ReasonFingerprintMismatch)
	}
	if v.TamperDetectionEnabled && CheckIntegrity(s, now) != nil {
		return invalid(ReasonTampered)
	}
	if v.MaxInactivity > 0 && now.Sub(s.LastActivity) > v.MaxInactivity {
		return invalid(ReasonInactive)
	}

	return ValidationResult{IsValid: true, RemainingTime: s.ExpiresAt.Sub(now)}
}

func invalid(reason Reason) ValidationResult {
	return ValidationResult{Reason: reason}
}

func wellFormed(s *Session) bool {
	if s.ID == "" {
		return false
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() || s.LastActivity.IsZero() || s.ExpiresAt.IsZero() {
		return false
	}
	for _, v := range s.Metadata {
		if !sanitizer.IsScalar(v) {
			return false
		}
	}
	return true
}

// CheckIntegrity verifies the timestamp ordering of a record:
// CreatedAt <= UpdatedAt <= ExpiresAt, LastActivity <= ExpiresAt and CreatedAt <= now.
func CheckIntegrity(s *Session, now time.Time) error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil record", ErrIntegrity)
	case s.CreatedAt.After(now):
		return fmt.Errorf("%w: created in the future", ErrIntegrity)
	case s.CreatedAt.After(s.UpdatedAt):
		return fmt.Errorf("%w: created after last update", ErrIntegrity)
	case s.UpdatedAt.After(s.ExpiresAt):
		return fmt.Errorf("%w: updated after expiry", ErrIntegrity)
	case s.LastActivity.After(s.ExpiresAt):
		return fmt.Errorf("%w: active after expiry", ErrIntegrity)
	}
	return nil
}
