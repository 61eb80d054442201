// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver: a retrying pool constructor, goose migrations from an
// embedded filesystem and a health check closure.
//
// # Architecture
//
//   - Config is populated from environment variables via
//     github.com/caarlos0/env and controls pool limits and retry cadence.
//
//   - Connect opens a *pgxpool.Pool, retrying with a linear back-off until
//     the database becomes available.
//
//   - Migrate runs goose migrations from an fs.FS against the same pool, so
//     stores can ship their schema embedded in the binary.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, slog.Default()); err != nil {
//	    return err
//	}
//
//	health := pg.Healthcheck(pool)
//
// # Error Handling
//
// IsNotFoundError unwraps pgx.ErrNoRows so callers do not import pgx just to
// classify a missing row.
package pg
