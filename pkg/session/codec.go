package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/secrets"
)

// Codec turns a session record into bytes and back.
// Serializing stores use the codec returned by Security.Codec.
type Codec interface {
	Marshal(s *Session) ([]byte, error)
	Unmarshal(data []byte) (*Session, error)
}

// record is the persisted shape. Timestamps are RFC3339Nano in UTC.
type record struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id,omitempty"`
	IsAuthenticated bool           `json:"is_authenticated"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	LastActivity    string         `json:"last_activity"`
	ExpiresAt       string         `json:"expires_at"`
	Metadata        map[string]any `json:"metadata"`
	Fingerprint     string         `json:"fingerprint,omitempty"`
	ExpireNotified  bool           `json:"expire_notified"`
}

// JSONCodec stores records as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Marshal(s *Session) ([]byte, error) {
	if s == nil {
		return nil, ErrInvalidSession
	}
	return json.Marshal(record{
		ID:              s.ID,
		UserID:          s.UserID,
		IsAuthenticated: s.IsAuthenticated,
		CreatedAt:       formatTime(s.CreatedAt),
		UpdatedAt:       formatTime(s.UpdatedAt),
		LastActivity:    formatTime(s.LastActivity),
		ExpiresAt:       formatTime(s.ExpiresAt),
		Metadata:        s.Metadata,
		Fingerprint:     s.Fingerprint,
		ExpireNotified:  s.ExpireNotified,
	})
}

func (JSONCodec) Unmarshal(data []byte) (*Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}

	s := &Session{
		ID:              r.ID,
		UserID:          r.UserID,
		IsAuthenticated: r.IsAuthenticated,
		Metadata:        r.Metadata,
		Fingerprint:     r.Fingerprint,
		ExpireNotified:  r.ExpireNotified,
	}
	var err error
	if s.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, err
	}
	if s.LastActivity, err = parseTime(r.LastActivity); err != nil {
		return nil, err
	}
	if s.ExpiresAt, err = parseTime(r.ExpiresAt); err != nil {
		return nil, err
	}
	return s, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode session timestamp: %w", err)
	}
	return t.UTC(), nil
}

// EncryptedCodec seals the output of an inner codec with AES-256-GCM.
type EncryptedCodec struct {
	inner  Codec
	cipher *secrets.Cipher
}

const codecPurpose = "session-record"

// NewEncryptedCodec derives a record key from the master key and wraps inner.
// A nil inner codec defaults to JSONCodec.
func NewEncryptedCodec(masterKey []byte, inner Codec) (*EncryptedCodec, error) {
	c, err := secrets.NewCipher(masterKey, codecPurpose)
	if err != nil {
		return nil, &SecurityError{Op: "init", Err: err}
	}
	if inner == nil {
		inner = JSONCodec{}
	}
	return &EncryptedCodec{inner: inner, cipher: c}, nil
}

func (c *EncryptedCodec) Marshal(s *Session) ([]byte, error) {
	plain, err := c.inner.Marshal(s)
	if err != nil {
		return nil, err
	}
	sealed, err := c.cipher.Encrypt(plain)
	if err != nil {
		return nil, &SecurityError{Op: "encrypt", Err: err}
	}
	return sealed, nil
}

func (c *EncryptedCodec) Unmarshal(data []byte) (*Session, error) {
	plain, err := c.cipher.Decrypt(data)
	if err != nil {
		return nil, &SecurityError{Op: "decrypt", Err: err}
	}
	s, err := c.inner.Unmarshal(plain)
	if err != nil {
		return nil, &SecurityError{Op: "decrypt", Err: errors.Join(secrets.ErrDecryptionFailed, err)}
	}
	return s, nil
}
