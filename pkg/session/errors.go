package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession indicates a record that cannot be stored or used
	ErrInvalidSession = errors.New("session.invalid")

	// ErrSessionExpired indicates the session has expired
	ErrSessionExpired = errors.New("session.expired")

	// ErrSessionNotFound indicates no session was found
	ErrSessionNotFound = errors.New("session.not_found")

	// ErrSessionLimitExceeded indicates the user already holds the maximum number of live sessions
	ErrSessionLimitExceeded = errors.New("session.limit_exceeded")

	// ErrCreateFailed indicates a session could not be created
	ErrCreateFailed = errors.New("session.create_failed")

	// ErrInvalidDuration indicates a negative extension
	ErrInvalidDuration = errors.New("session.invalid_duration")

	// ErrNoCurrentSession indicates the service has no current session
	ErrNoCurrentSession = errors.New("session.no_current_session")

	// ErrNoStore indicates no store is configured
	ErrNoStore = errors.New("session.no_store")

	// ErrInvalidConfig indicates a configuration value is out of range
	ErrInvalidConfig = errors.New("session.invalid_config")

	// ErrIntegrity indicates a record violates the timestamp invariants
	ErrIntegrity = errors.New("session.integrity_violation")

	// ErrStorage matches every *StorageError
	ErrStorage = errors.New("session.storage")

	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("session.validation")

	// ErrSecurity matches every *SecurityError
	ErrSecurity = errors.New("session.security")
)

// StorageError reports a backend fault.
type StorageError struct {
	Op        string
	SessionID string
	Err       error
}

// NewStorageError wraps a backend error. Nil stays nil, and ErrSessionNotFound,
// *StorageError and *SecurityError pass through unchanged.
func NewStorageError(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	var sec *SecurityError
	if errors.Is(err, ErrSessionNotFound) || errors.As(err, &se) || errors.As(err, &sec) {
		return err
	}
	return &StorageError{Op: op, SessionID: sessionID, Err: err}
}

func (e *StorageError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("session.storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session.storage: %s %s: %v", e.Op, shortID(e.SessionID), e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ValidationError is the error form of a failed ValidationResult.
type ValidationError struct {
	SessionID string
	Reason    Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session.validation: %s", e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrSessionExpired:
		return e.Reason == ReasonExpired
	case ErrSessionNotFound:
		return e.Reason == ReasonNotFound
	}
	return false
}

// SecurityError reports a failed security operation such as decryption.
type SecurityError struct {
	Op  string
	Err error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("session.security: %s: %v", e.Op, e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

func (e *SecurityError) Is(target error) bool { return target == ErrSecurity }

// shortID keeps full session ids out of error strings and logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}
