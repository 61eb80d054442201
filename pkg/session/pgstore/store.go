// Package pgstore keeps session records in PostgreSQL.
//
// The record itself is an opaque payload produced by a session.Codec; the
// owner and expiry are duplicated into indexed columns so expiry sweeps and
// per-user lookups never decode unrelated rows. The schema ships as embedded
// goose migrations, see Migrations.
package pgstore

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/pg"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the goose migrations for the sessions table.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DB is the subset of *pgxpool.Pool (or pgx.Tx) the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	getQuery    = `SELECT payload FROM sessions WHERE id = $1`
	upsertQuery = `INSERT INTO sessions (id, user_id, expires_at_ms, payload, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    expires_at_ms = EXCLUDED.expires_at_ms,
    payload = EXCLUDED.payload,
    updated_at = EXCLUDED.updated_at`
	deleteQuery  = `DELETE FROM sessions WHERE id = $1`
	clearQuery   = `DELETE FROM sessions`
	expiredQuery = `SELECT id, payload FROM sessions WHERE expires_at_ms <= $1 ORDER BY expires_at_ms`
	userQuery    = `SELECT id, payload FROM sessions WHERE user_id = $1`
)

// Store implements session.Store on PostgreSQL.
type Store struct {
	db     DB
	codec  session.Codec
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithCodec sets the record codec, usually session.Security.Codec()
func WithCodec(c session.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithClock overrides the time source used for expiry queries
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report undecodable rows
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a PostgreSQL backed store. The schema must already be migrated.
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  session.JSONCodec{},
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Backend("postgres"))
	return s
}

// Get retrieves a session by id
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var payload []byte
	if err := s.db.QueryRow(ctx, getQuery, id).Scan(&payload); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, session.ErrSessionNotFound
		}
		return nil, session.NewStorageError("get", id, err)
	}

	sess, err := s.codec.Unmarshal(payload)
	if err != nil {
		return nil, session.NewStorageError("decode", id, err)
	}
	return sess, nil
}

// Set upserts the record
func (s *Store) Set(ctx context.Context, id string, sess *session.Session) error {
	if sess == nil || id == "" || sess.ID != id {
		return session.ErrInvalidSession
	}

	payload, err := s.codec.Marshal(sess)
	if err != nil {
		return session.NewStorageError("encode", id, err)
	}

	if _, err := s.db.Exec(ctx, upsertQuery, id, sess.UserID, sess.ExpiresAt.UnixMilli(), payload); err != nil {
		return session.NewStorageError("set", id, err)
	}
	return nil
}

// Remove deletes a session by id
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, deleteQuery, id); err != nil {
		return session.NewStorageError("remove", id, err)
	}
	return nil
}

// Clear deletes every row of the sessions table
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, clearQuery); err != nil {
		return session.NewStorageError("clear", "", err)
	}
	return nil
}

// GetExpiredSessions returns expired records, oldest first
func (s *Store) GetExpiredSessions(ctx context.Context) ([]*session.Session, error) {
	now := s.now()
	loaded, err := s.query(ctx, "expired", expiredQuery, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(slices.Values(loaded), session.ExpiredAt(now))
	session.SortByExpiry(out)
	return out, nil
}

// GetUserSessions returns the records owned by userID, oldest first
func (s *Store) GetUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	loaded, err := s.query(ctx, "user_sessions", userQuery, userID)
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(slices.Values(loaded), session.OwnedBy(userID))
	session.SortByCreation(out)
	return out, nil
}

type row struct {
	ID      string
	Payload []byte
}

func (s *Store) query(ctx context.Context, op, sql string, arg any) ([]*session.Session, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, session.NewStorageError(op, "", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[row])
	if err != nil {
		return nil, session.NewStorageError(op, "", err)
	}

	out := make([]*session.Session, 0, len(list))
	for _, r := range list {
		sess, err := s.codec.Unmarshal(r.Payload)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable session row",
				logger.SessionID(r.ID),
				logger.Error(err),
			)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}
