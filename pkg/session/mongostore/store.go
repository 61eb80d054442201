// Package mongostore keeps session records as MongoDB documents.
package mongostore

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// document is the stored shape. The codec payload is authoritative; user_id
// and expires_at_ms only feed the indexes.
type document struct {
	ID          string `bson:"_id"`
	UserID      string `bson:"user_id"`
	ExpiresAtMS int64  `bson:"expires_at_ms"`
	Payload     []byte `bson:"payload"`
	UpdatedAt   int64  `bson:"updated_at"`
}

// Store implements session.Store on a MongoDB collection.
type Store struct {
	coll   *mongo.Collection
	codec  session.Codec
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the record codec, usually session.Security.Codec().
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

// WithLogger sets the logger used to report undecodable documents.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New wraps coll. Call EnsureIndexes once at startup.
func New(coll *mongo.Collection, opts ...Option) *Store {
	s := &Store{
		coll:   coll,
		codec:  session.JSONCodec{},
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Backend("mongo"))
	return s
}

// EnsureIndexes creates the owner and expiry indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetName("user_id_idx")},
		{Keys: bson.D{{Key: "expires_at_ms", Value: 1}}, Options: options.Index().SetName("expires_at_ms_idx")},
	})
	if err != nil {
		return session.NewStorageError("ensure_indexes", "", err)
	}
	return nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, session.NewStorageError("get", id, err)
	}

	sess, err := s.codec.Unmarshal(doc.Payload)
	if err != nil {
		return nil, session.NewStorageError("decode", id, err)
	}
	return sess, nil
}

// Set replaces the document, inserting it when missing.
func (s *Store) Set(ctx context.Context, id string, sess *session.Session) error {
	if sess == nil || id == "" || sess.ID != id {
		return session.ErrInvalidSession
	}

	payload, err := s.codec.Marshal(sess)
	if err != nil {
		return session.NewStorageError("encode", id, err)
	}

	doc := document{
		ID:          id,
		UserID:      sess.UserID,
		ExpiresAtMS: sess.ExpiresAt.UnixMilli(),
		Payload:     payload,
		UpdatedAt:   s.now().UnixMilli(),
	}
	_, err = s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return session.NewStorageError("set", id, err)
	}
	return nil
}

// Remove deletes a session by id. Missing ids are not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return session.NewStorageError("remove", id, err)
	}
	return nil
}

// Clear deletes every document in the collection.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return session.NewStorageError("clear", "", err)
	}
	return nil
}

// GetExpiredSessions returns expired records, oldest first.
func (s *Store) GetExpiredSessions(ctx context.Context) ([]*session.Session, error) {
	now := s.now()
	filter := bson.D{{Key: "expires_at_ms", Value: bson.D{{Key: "$lte", Value: now.UnixMilli()}}}}
	opts := options.Find().SetSort(bson.D{{Key: "expires_at_ms", Value: 1}})

	loaded, err := s.find(ctx, "expired", filter, opts)
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(loaded, session.ExpiredAt(now))
	session.SortByExpiry(out)
	return out, nil
}

// GetUserSessions returns the records owned by userID, oldest first.
func (s *Store) GetUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	loaded, err := s.find(ctx, "user_sessions", bson.D{{Key: "user_id", Value: userID}}, options.Find())
	if err != nil {
		return nil, err
	}
	out := session.FilterSessions(loaded, session.OwnedBy(userID))
	session.SortByCreation(out)
	return out, nil
}

func (s *Store) find(ctx context.Context, op string, filter bson.D, opts *options.FindOptionsBuilder) (iter.Seq[*session.Session], error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, session.NewStorageError(op, "", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, session.NewStorageError(op, "", err)
	}

	return func(yield func(*session.Session) bool) {
		for _, doc := range docs {
			sess, err := s.codec.Unmarshal(doc.Payload)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping undecodable session document",
					logger.SessionID(doc.ID),
					logger.Error(err),
				)
				continue
			}
			if !yield(sess) {
				return
			}
		}
	}, nil
}
