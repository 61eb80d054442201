// Package sqlitestore is an embedded, file backed session.Store built on the
// pure Go SQLite driver. It suits single-node deployments that want records
// to survive restarts without running a database server.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

const (
	getQuery    = `SELECT payload FROM sessions WHERE id = ?`
	upsertQuery = `INSERT INTO sessions (id, user_id, expires_at_ms, payload, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    expires_at_ms = excluded.expires_at_ms,
    payload = excluded.payload,
    updated_at = excluded.updated_at`
	deleteQuery  = `DELETE FROM sessions WHERE id = ?`
	clearQuery   = `DELETE FROM sessions`
	expiredQuery = `SELECT id, payload FROM sessions WHERE expires_at_ms <= ? ORDER BY expires_at_ms`
	userQuery    = `SELECT id, payload FROM sessions WHERE user_id = ?`
)

// Store implements session.Store on SQLite.
type Store struct {
	db     *sql.DB
	codec  session.Codec
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the record codec.
func WithCodec(c session.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithClock overrides the time source used for expiry queries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report undecodable rows.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New wraps an opened and migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  session.JSONCodec{},
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Backend("sqlite"))
	return s
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, getQuery, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, session.NewStorageError("get", id, err)
	}

	sess, err := s.codec.Unmarshal(payload)
	if err != nil {
		return nil, session.NewStorageError("decode", id, err)
	}
	return sess, nil
}

// Set upserts the record.
func (s *Store) Set(ctx context.Context, id string, sess *session.Session) error {
	if sess == nil || id == "" || sess.ID != id {
		return session.ErrInvalidSession
	}

	payload, err := s.codec.Marshal(sess)
	if err != nil {
		return session.NewStorageError("encode", id, err)
	}

	_, err = s.db.ExecContext(ctx, upsertQuery,
		id, sess.UserID, sess.ExpiresAt.UnixMilli(), payload, s.now().UnixMilli())
	if err != nil {
		return session.NewStorageError("set", id, err)
	}
	return nil
}

// Remove deletes a session by id. Missing ids are not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, deleteQuery, id); err != nil {
		return session.NewStorageError("remove", id, err)
	}
	return nil
}

// Clear deletes every row of the sessions table.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, clearQuery); err != nil {
		return session.NewStorageError("clear", "", err)
	}
	return nil
}

// GetExpiredSessions returns expired records, oldest first.
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

// GetUserSessions returns the records owned by userID, oldest first.
func (s *Store) GetUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	loaded, err := s.query(ctx, "user_sessions", userQuery, userID)
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(slices.Values(loaded), session.OwnedBy(userID))
	session.SortByCreation(out)
	return out, nil
}

func (s *Store) query(ctx context.Context, op, q string, arg any) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, session.NewStorageError(op, "", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, session.NewStorageError(op, "", err)
		}
		sess, err := s.codec.Unmarshal(payload)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable session row",
				logger.SessionID(id),
				logger.Error(err),
			)
			continue
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, session.NewStorageError(op, "", err)
	}
	return out, nil
}
