package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/secrets"
)

// Backend names the storage technology a deployment uses.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendDurable Backend = "durable"
	BackendIndexed Backend = "indexed"
)

// Config holds session configuration
type Config struct {
	// MaxAge is the lifetime granted at creation and on every refresh
	MaxAge            time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	SlidingExpiration bool          `env:"SESSION_SLIDING_EXPIRATION" envDefault:"true"`
	// MaxInactivity is the idle limit checked by the validator (0 to disable)
	MaxInactivity time.Duration `env:"SESSION_MAX_INACTIVITY" envDefault:"30m"`

	StorageBackend Backend `env:"SESSION_STORAGE_BACKEND" envDefault:"memory"`

	FingerprintEnabled bool `env:"SESSION_FINGERPRINT_ENABLED" envDefault:"true"`
	EncryptionEnabled  bool `env:"SESSION_ENCRYPTION_ENABLED" envDefault:"false"`
	// EncryptionKey is a base64 encoded 32 byte key, required when encryption is enabled
	EncryptionKey          string `env:"SESSION_ENCRYPTION_KEY"`
	TamperDetectionEnabled bool   `env:"SESSION_TAMPER_DETECTION_ENABLED" envDefault:"true"`

	// MaxSessionsPerUser caps live sessions per user (0 for unlimited)
	MaxSessionsPerUser int `env:"SESSION_MAX_PER_USER" envDefault:"5"`

	CleanupEnabled    bool          `env:"SESSION_CLEANUP_ENABLED" envDefault:"true"`
	CleanupInterval   time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
	CleanupBatchSize  int           `env:"SESSION_CLEANUP_BATCH_SIZE" envDefault:"50"`
	CleanupBatchDelay time.Duration `env:"SESSION_CLEANUP_BATCH_DELAY" envDefault:"100ms"`
	// ExpiredSessionRetention keeps expired records around before hard removal
	ExpiredSessionRetention time.Duration `env:"SESSION_EXPIRED_RETENTION" envDefault:"0s"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		MaxAge:                 24 * time.Hour,
		SlidingExpiration:      true,
		MaxInactivity:          30 * time.Minute,
		StorageBackend:         BackendMemory,
		FingerprintEnabled:     true,
		TamperDetectionEnabled: true,
		MaxSessionsPerUser:     5,
		CleanupEnabled:         true,
		CleanupInterval:        5 * time.Minute,
		CleanupBatchSize:       50,
		CleanupBatchDelay:      100 * time.Millisecond,
	}
}

// Validate reports the first out-of-range value.
func (c Config) Validate() error {
	switch {
	case c.MaxAge <= 0:
		return invalidConfig("max age must be positive, got %s", c.MaxAge)
	case c.MaxInactivity < 0:
		return invalidConfig("max inactivity must not be negative, got %s", c.MaxInactivity)
	case c.MaxSessionsPerUser < 0:
		return invalidConfig("max sessions per user must not be negative, got %d", c.MaxSessionsPerUser)
	case c.CleanupEnabled && c.CleanupInterval <= 0:
		return invalidConfig("cleanup interval must be positive, got %s", c.CleanupInterval)
	case c.CleanupBatchSize <= 0:
		return invalidConfig("cleanup batch size must be positive, got %d", c.CleanupBatchSize)
	case c.CleanupBatchDelay < 0:
		return invalidConfig("cleanup batch delay must not be negative, got %s", c.CleanupBatchDelay)
	case c.ExpiredSessionRetention < 0:
		return invalidConfig("expired session retention must not be negative, got %s", c.ExpiredSessionRetention)
	}

	switch c.StorageBackend {
	case BackendMemory, BackendDurable, BackendIndexed:
	default:
		return invalidConfig("unknown storage backend %q", c.StorageBackend)
	}

	if c.EncryptionEnabled {
		if c.EncryptionKey == "" {
			return invalidConfig("encryption enabled without a key")
		}
		if _, err := secrets.DecodeKey(c.EncryptionKey); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}

	return nil
}

func invalidConfig(format string, args ...any) error {
	return errors.Join(ErrInvalidConfig, fmt.Errorf(format, args...))
}

// NewFromConfig creates a new Service from the provided Config.
func NewFromConfig(cfg Config, opts ...Option) (*Service, error) {
	configOpts := []Option{
		WithConfig(cfg),
	}

	configOpts = append(configOpts, opts...)

	return New(configOpts...)
}
