package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"io"
	"log/slog"
	mathrand "math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/sanitizer"
	"github.com/dmitrymomot/sessionkit/pkg/secrets"
)

const (
	idBytes           = 32
	maxMetadataKeys   = 64
	maxMetadataString = 4096
)

var deniedMetadataKeys = []string{"__proto__", "constructor", "prototype"}

// Security groups the fingerprint, encryption, integrity, sanitization and
// session cap checks. Each feature is toggled by Config.
type Security struct {
	fingerprintEnabled bool
	tamperDetection    bool
	maxSessionsPerUser int
	codec              Codec
	encrypted          bool
	random             io.Reader
	logger             *slog.Logger
	now                func() time.Time
}

// NewSecurity builds a security manager. Encryption requires a valid
// base64 EncryptionKey.
func NewSecurity(cfg Config, log *slog.Logger) (*Security, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Security{
		fingerprintEnabled: cfg.FingerprintEnabled,
		tamperDetection:    cfg.TamperDetectionEnabled,
		maxSessionsPerUser: cfg.MaxSessionsPerUser,
		codec:              JSONCodec{},
		random:             rand.Reader,
		logger:             log,
		now:                time.Now,
	}

	if cfg.EncryptionEnabled {
		key, err := secrets.DecodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, &SecurityError{Op: "init", Err: err}
		}
		codec, err := NewEncryptedCodec(key, JSONCodec{})
		if err != nil {
			return nil, err
		}
		s.codec = codec
		s.encrypted = true
	}

	return s, nil
}

// FingerprintEnabled reports whether fingerprints are bound to sessions.
func (s *Security) FingerprintEnabled() bool { return s.fingerprintEnabled }

// EncryptionEnabled reports whether serialized records are encrypted.
func (s *Security) EncryptionEnabled() bool { return s.encrypted }

// Fingerprint derives a fingerprint from the probe. It returns an empty
// string when fingerprinting is disabled or the probe is nil.
func (s *Security) Fingerprint(p fingerprint.Probe) string {
	if !s.fingerprintEnabled || p == nil {
		return ""
	}
	return fingerprint.Generate(p)
}

// ValidateFingerprint compares fingerprints in constant time. Empty values never match.
func (s *Security) ValidateFingerprint(stored, current string) bool {
	return fingerprint.Validate(stored, current)
}

// Codec returns the codec serializing stores must use.
func (s *Security) Codec() Codec { return s.codec }

// EncryptSessionData serializes and, when enabled, encrypts a record.
func (s *Security) EncryptSessionData(sess *Session) ([]byte, error) {
	return s.codec.Marshal(sess)
}

// DecryptSessionData reverses EncryptSessionData. Decryption failures are
// returned as *SecurityError.
func (s *Security) DecryptSessionData(data []byte) (*Session, error) {
	return s.codec.Unmarshal(data)
}

// ValidateIntegrity checks the timestamp invariants of a record.
func (s *Security) ValidateIntegrity(sess *Session) error {
	if err := CheckIntegrity(sess, s.now()); err != nil {
		return &SecurityError{Op: "integrity", Err: err}
	}
	return nil
}

// TamperDetectionEnabled reports whether integrity checks run during validation.
func (s *Security) TamperDetectionEnabled() bool { return s.tamperDetection }

// SanitizeMetadata keeps scalar values only and drops reserved keys.
// The result is never nil.
func (s *Security) SanitizeMetadata(m map[string]any) map[string]any {
	return sanitizer.ScalarMap(m, sanitizer.ScalarOptions{
		MaxKeys:         maxMetadataKeys,
		MaxStringLength: maxMetadataString,
		DeniedKeys:      deniedMetadataKeys,
	})
}

// CheckSessionLimits reports whether another session may be created given
// the user's existing records. Expired records do not count.
func (s *Security) CheckSessionLimits(existing []*Session) bool {
	if s.maxSessionsPerUser <= 0 {
		return true
	}
	now := s.now()
	live := 0
	for _, sess := range existing {
		if sess != nil && !sess.IsExpiredAt(now) {
			live++
		}
	}
	return live < s.maxSessionsPerUser
}

// GenerateID returns a new unguessable session id.
func (s *Security) GenerateID() string {
	return generateID(s.random, s.logger)
}

var fallbackCounter atomic.Uint64

// generateID reads 32 bytes from r and encodes them as unpadded base64url.
// If r fails a ChaCha8 stream seeded from the clock is used instead.
func generateID(r io.Reader, log *slog.Logger) string {
	b := make([]byte, idBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		log.Warn("secure random source failed, using degraded id generator",
			logger.Error(err),
			slog.Bool("degraded", true),
		)
		var seedInput [16]byte
		binary.LittleEndian.PutUint64(seedInput[:8], uint64(time.Now().UnixNano()))
		binary.LittleEndian.PutUint64(seedInput[8:], fallbackCounter.Add(1))
		_, _ = mathrand.NewChaCha8(sha256.Sum256(seedInput[:])).Read(b)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
