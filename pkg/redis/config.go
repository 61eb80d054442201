package redis

import "time"

// Config describes how to reach the Redis server that backs durable sessions.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // redis://:password@host:6379/0
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	// KeyPrefix namespaces every session key written by the store
	KeyPrefix string `env:"REDIS_SESSION_PREFIX" envDefault:"session:"`
	// TTLGrace adds a safety TTL of expiry + grace to every record (0 disables)
	TTLGrace time.Duration `env:"REDIS_SESSION_TTL_GRACE" envDefault:"0s"`
}
