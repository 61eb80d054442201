// Package session provides a storage-independent session lifecycle and
// validation engine. It creates, mutates, validates, secures and expires
// short-lived session records and publishes every transition to registered
// listeners.
//
// The package is storage-agnostic: any datastore that satisfies the Store
// interface can be plugged in. A concurrent in-memory implementation ships
// with the package; durable and indexed backends live in the redisstore,
// pgstore, sqlitestore and mongostore subpackages.
//
// # Architecture
//
// A Manager owns the state machine. Every transition reads the record from
// the Store, computes the new state and writes it back while holding a
// per-session lock, then emits exactly one event. A Validator decides whether
// a record is usable, a Security value binds fingerprints, encrypts serialized
// records and enforces the per-user session cap, and a Cleaner removes expired
// records in the background.
//
//	┌─────────┐        ┌─────────────┐        ┌────────┐
//	│ Service │ ─────► │   Manager   │ ─────► │ Store  │ (memory, redis, pg, …)
//	└─────────┘        └─────────────┘        └────────┘
//	     │               │         │               ▲
//	     │          Security   Validator           │
//	     │                                         │
//	     └──► Emitter ◄──────── Cleaner ───────────┘
//
// # Usage
//
//	import "github.com/dmitrymomot/sessionkit/pkg/session"
//
//	svc, err := session.New(
//	    session.WithMaxAge(12*time.Hour),
//	    session.WithProbe(fingerprint.StaticProbe{UA: "cli/1.0"}),
//	)
//	if err != nil {
//	    return err
//	}
//	svc.Start(ctx)
//	defer svc.Close()
//
//	svc.OnSessionExpire(func(ctx context.Context, s *session.Session) {
//	    audit.Record(ctx, "session expired", s.ID)
//	})
//
//	sess, err := svc.StartSession(ctx, userID, map[string]any{"plan": "pro"})
//	res, err := svc.ValidateSession(ctx)
//	if !res.IsValid {
//	    // res.Reason is one of not_found, expired, invalid_format,
//	    // fingerprint_mismatch, tampered or inactive
//	}
//
// # Configuration
//
// Most knobs are exposed via Option functions (e.g. WithMaxAge) or by
// passing a Config struct to NewFromConfig. Config carries env tags so it can
// be populated with pkg/config.
//
// # Error Handling
//
// Common error values returned by the package:
//
//   - ErrSessionNotFound      – no record for the id
//   - ErrSessionLimitExceeded – the user holds the maximum number of live sessions
//   - ErrCreateFailed         – joined with the storage error that stopped creation
//   - ErrInvalidDuration      – negative extension
//
// Backend faults are *StorageError (errors.Is(err, ErrStorage)), decryption
// and integrity failures are *SecurityError (errors.Is(err, ErrSecurity)) and
// ValidationResult.Err converts a failed validation into a *ValidationError.
package session
