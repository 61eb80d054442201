// Package redis provides helpers for connecting to the Redis server that
// backs the durable session store.
//
// The package wraps the go-redis client and adds:
//
//   - Connect, which retries the initial ping using the supplied configuration.
//   - Healthcheck, a closure suitable for liveness and readiness probes.
//
// Configuration is described by the Config struct whose fields can be
// populated from environment variables via github.com/caarlos0/env. The
// KeyPrefix and TTLGrace fields are consumed by pkg/session/redisstore.
//
// # Usage
//
//	cfg := redis.Config{
//	    ConnectionURL:  "redis://localhost:6379/0",
//	    RetryAttempts:  3,
//	    RetryInterval:  5 * time.Second,
//	    ConnectTimeout: 30 * time.Second,
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	store := redisstore.New(client, redisstore.WithPrefix(cfg.KeyPrefix))
//
//	checker := redis.Healthcheck(client)
//	if err := checker(ctx); err != nil {
//	    // redis is not healthy
//	}
//
// # Errors
//
// Sentinel errors (e.g. ErrRedisNotReady) are joined with the underlying
// go-redis errors using errors.Join.
package redis
