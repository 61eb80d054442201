// Package redisstore keeps session records in Redis.
//
// Each record is stored as an opaque payload produced by a session.Codec under
// <prefix><id>. Three secondary indexes make the Store queries cheap:
//
//	<prefix>idx:expires      sorted set, member id, score expiry in unix ms
//	<prefix>idx:user:<uid>   set of ids owned by uid (empty uid for anonymous)
//	<prefix>idx:owner        hash id -> uid, used to move ids between user sets
//
// Writes go through MULTI/EXEC so the payload and its index entries change together.
package redisstore

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

const (
	defaultPrefix = "session:"
	mgetChunk     = 100
	scanCount     = 200
)

// Store implements session.Store on top of a Redis client.
type Store struct {
	client   redis.UniversalClient
	codec    session.Codec
	prefix   string
	ttlGrace time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithPrefix namespaces every key written by the store
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithCodec sets the record codec, usually session.Security.Codec()
func WithCodec(c session.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithTTLGrace lets Redis drop a payload on its own once it has been expired
// for longer than grace. Zero keeps payloads until they are removed.
func WithTTLGrace(grace time.Duration) Option {
	return func(s *Store) {
		s.ttlGrace = grace
	}
}

// WithClock overrides the time source used for expiry queries
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report undecodable records
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Redis backed store.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		codec:  session.JSONCodec{},
		prefix: defaultPrefix,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Backend("redis"))
	return s
}

func (s *Store) key(id string) string         { return s.prefix + id }
func (s *Store) expiresKey() string           { return s.prefix + "idx:expires" }
func (s *Store) ownerKey() string             { return s.prefix + "idx:owner" }
func (s *Store) userKey(userID string) string { return s.prefix + "idx:user:" + userID }

// Get retrieves a session by id
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, session.NewStorageError("get", id, err)
	}

	sess, err := s.codec.Unmarshal(data)
	if err != nil {
		return nil, session.NewStorageError("decode", id, err)
	}
	return sess, nil
}

// Set writes the record and its index entries atomically
func (s *Store) Set(ctx context.Context, id string, sess *session.Session) error {
	if sess == nil || id == "" || sess.ID != id {
		return session.ErrInvalidSession
	}

	data, err := s.codec.Marshal(sess)
	if err != nil {
		return session.NewStorageError("encode", id, err)
	}

	prevOwner, hadOwner, err := s.owner(ctx, id)
	if err != nil {
		return session.NewStorageError("set", id, err)
	}

	ttl := s.payloadTTL(sess.ExpiresAt)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(id), data, ttl)
		pipe.ZAdd(ctx, s.expiresKey(), redis.Z{
			Score:  float64(sess.ExpiresAt.UnixMilli()),
			Member: id,
		})
		if hadOwner && prevOwner != sess.UserID {
			pipe.SRem(ctx, s.userKey(prevOwner), id)
		}
		pipe.SAdd(ctx, s.userKey(sess.UserID), id)
		pipe.HSet(ctx, s.ownerKey(), id, sess.UserID)
		return nil
	})
	if err != nil {
		return session.NewStorageError("set", id, err)
	}
	return nil
}

func (s *Store) payloadTTL(expiresAt time.Time) time.Duration {
	if s.ttlGrace <= 0 {
		return 0
	}
	return max(expiresAt.Add(s.ttlGrace).Sub(s.now()), time.Millisecond)
}

func (s *Store) owner(ctx context.Context, id string) (string, bool, error) {
	uid, err := s.client.HGet(ctx, s.ownerKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uid, true, nil
}

// Remove deletes the record and its index entries. Missing ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) error {
	uid, hadOwner, err := s.owner(ctx, id)
	if err != nil {
		return session.NewStorageError("remove", id, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.unindex(ctx, pipe, id, uid, hadOwner)
		pipe.Del(ctx, s.key(id))
		return nil
	})
	if err != nil {
		return session.NewStorageError("remove", id, err)
	}
	return nil
}

func (s *Store) unindex(ctx context.Context, pipe redis.Pipeliner, id, uid string, hadOwner bool) {
	pipe.ZRem(ctx, s.expiresKey(), id)
	pipe.HDel(ctx, s.ownerKey(), id)
	if hadOwner {
		pipe.SRem(ctx, s.userKey(uid), id)
	}
}

// Clear deletes every key under the store prefix. Other keys in the
// database are left alone.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanCount).Iterator()
	batch := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanCount {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return session.NewStorageError("clear", "", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return session.NewStorageError("clear", "", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return session.NewStorageError("clear", "", err)
		}
	}
	return nil
}

// GetExpiredSessions returns records whose expiry is at or before now,
// oldest first.
func (s *Store) GetExpiredSessions(ctx context.Context) ([]*session.Session, error) {
	now := s.now()
	ids, err := s.client.ZRangeByScore(ctx, s.expiresKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, session.NewStorageError("expired", "", err)
	}

	loaded, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(slices.Values(loaded), session.ExpiredAt(now))
	session.SortByExpiry(out)
	return out, nil
}

// GetUserSessions returns the records owned by userID, oldest first.
func (s *Store) GetUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, session.NewStorageError("user_sessions", "", err)
	}

	loaded, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(slices.Values(loaded), session.OwnedBy(userID))
	session.SortByCreation(out)
	return out, nil
}

// load fetches payloads in chunks. Ids whose payload is gone are pruned
// from the indexes; undecodable payloads are logged and skipped.
func (s *Store) load(ctx context.Context, ids []string) ([]*session.Session, error) {
	out := make([]*session.Session, 0, len(ids))
	var stale []string

	for chunk := range slices.Chunk(ids, mgetChunk) {
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = s.key(id)
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, session.NewStorageError("load", "", err)
		}

		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, chunk[i])
				continue
			}
			sess, err := s.codec.Unmarshal([]byte(raw))
			if err != nil {
				s.logger.WarnContext(ctx, "skipping undecodable session record",
					logger.SessionID(chunk[i]),
					logger.Error(err),
				)
				continue
			}
			out = append(out, sess)
		}
	}

	if len(stale) > 0 {
		s.prune(ctx, stale)
	}
	return out, nil
}

func (s *Store) prune(ctx context.Context, ids []string) {
	for _, id := range ids {
		uid, hadOwner, err := s.owner(ctx, id)
		if err != nil {
			return
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.unindex(ctx, pipe, id, uid, hadOwner)
			return nil
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to prune session index", logger.SessionID(id), logger.Error(err))
			return
		}
	}
}
