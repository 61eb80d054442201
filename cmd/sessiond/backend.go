package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/sessionkit/pkg/config"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/mongo"
	"github.com/dmitrymomot/sessionkit/pkg/pg"
	"github.com/dmitrymomot/sessionkit/pkg/redis"
	"github.com/dmitrymomot/sessionkit/pkg/session"
	"github.com/dmitrymomot/sessionkit/pkg/session/mongostore"
	"github.com/dmitrymomot/sessionkit/pkg/session/pgstore"
	"github.com/dmitrymomot/sessionkit/pkg/session/redisstore"
	"github.com/dmitrymomot/sessionkit/pkg/session/sqlitestore"
)

// Drivers behind the "indexed" storage backend.
const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
	driverMongo    = "mongo"
)

type indexedConfig struct {
	Driver     string `env:"SESSIOND_INDEXED_DRIVER" envDefault:"sqlite"`
	SQLitePath string `env:"SESSIOND_SQLITE_PATH" envDefault:"sessions.db"`
}

type backend struct {
	name    string
	store   session.Store
	checks  []func(context.Context) error
	closers []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// openBackend connects the store selected by SESSION_STORAGE_BACKEND and
// prepares its schema. Every serializing backend uses codec.
func openBackend(ctx context.Context, kind session.Backend, codec session.Codec, log *slog.Logger) (*backend, error) {
	switch kind {
	case session.BackendMemory, "":
		return &backend{name: "memory", store: session.NewMemoryStore()}, nil
	case session.BackendDurable:
		return openRedis(ctx, codec, log)
	case session.BackendIndexed:
		var cfg indexedConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		switch cfg.Driver {
		case driverPostgres:
			return openPostgres(ctx, codec, log)
		case driverSQLite:
			return openSQLite(ctx, cfg.SQLitePath, codec, log)
		case driverMongo:
			return openMongo(ctx, codec, log)
		default:
			return nil, fmt.Errorf("%w: unknown indexed driver %q", session.ErrInvalidConfig, cfg.Driver)
		}
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", session.ErrInvalidConfig, kind)
	}
}

func openRedis(ctx context.Context, codec session.Codec, log *slog.Logger) (*backend, error) {
	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := redisstore.New(client,
		redisstore.WithPrefix(cfg.KeyPrefix),
		redisstore.WithTTLGrace(cfg.TTLGrace),
		redisstore.WithCodec(codec),
		redisstore.WithLogger(log),
	)
	return &backend{
		name:   "redis",
		store:  store,
		checks: []func(context.Context) error{redis.Healthcheck(client)},
		closers: []func(){func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close redis client", logger.Error(err))
			}
		}},
	}, nil
}

func openPostgres(ctx context.Context, codec session.Codec, log *slog.Logger) (*backend, error) {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log); err != nil {
		pool.Close()
		return nil, err
	}

	return &backend{
		name:    "postgres",
		store:   pgstore.New(pool, pgstore.WithCodec(codec), pgstore.WithLogger(log)),
		checks:  []func(context.Context) error{pg.Healthcheck(pool)},
		closers: []func(){pool.Close},
	}, nil
}

func openSQLite(ctx context.Context, path string, codec session.Codec, log *slog.Logger) (*backend, error) {
	db, err := sqlitestore.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqlitestore.Migrate(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &backend{
		name:   "sqlite",
		store:  sqlitestore.New(db, sqlitestore.WithCodec(codec), sqlitestore.WithLogger(log)),
		checks: []func(context.Context) error{db.PingContext},
		closers: []func(){func() {
			if err := db.Close(); err != nil {
				log.Error("failed to close sqlite database", logger.Error(err))
			}
		}},
	}, nil
}

func openMongo(ctx context.Context, codec session.Codec, log *slog.Logger) (*backend, error) {
	var cfg mongo.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	disconnect := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error("failed to disconnect mongo client", logger.Error(err))
		}
	}

	store := mongostore.New(client.Database(cfg.Database).Collection(cfg.Collection),
		mongostore.WithCodec(codec),
		mongostore.WithLogger(log),
	)
	if err := store.EnsureIndexes(ctx); err != nil {
		disconnect()
		return nil, err
	}

	return &backend{
		name:    "mongo",
		store:   store,
		checks:  []func(context.Context) error{mongo.Healthcheck(client)},
		closers: []func(){disconnect},
	}, nil
}
