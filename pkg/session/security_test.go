package session_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/secrets"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

func newSecurity(t *testing.T, mutate func(*session.Config)) *session.Security {
	t.Helper()
	cfg := session.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	sec, err := session.NewSecurity(cfg, nil)
	require.NoError(t, err)
	return sec
}

func TestSecurity_Fingerprint(t *testing.T) {
	t.Parallel()

	probe := fingerprint.StaticProbe{UA: "Mozilla/5.0", Lang: "en-US", TZ: "UTC"}

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		sec := newSecurity(t, nil)
		fp := sec.Fingerprint(probe)
		assert.Len(t, fp, 32)
		assert.Equal(t, fp, sec.Fingerprint(probe))
		assert.True(t, sec.ValidateFingerprint(fp, fp))
		assert.False(t, sec.ValidateFingerprint(fp, ""))
		assert.False(t, sec.ValidateFingerprint("", fp))
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		sec := newSecurity(t, func(c *session.Config) { c.FingerprintEnabled = false })
		assert.Empty(t, sec.Fingerprint(probe))
		assert.False(t, sec.FingerprintEnabled())
	})

	t.Run("nil probe", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, newSecurity(t, nil).Fingerprint(nil))
	})
}

func TestSecurity_Encryption(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	t.Run("disabled uses plain json", func(t *testing.T) {
		t.Parallel()
		sec := newSecurity(t, nil)
		assert.False(t, sec.EncryptionEnabled())
		assert.IsType(t, session.JSONCodec{}, sec.Codec())

		data, err := sec.EncryptSessionData(sampleSession())
		require.NoError(t, err)
		assert.Contains(t, string(data), `"user_id":"u1"`)
	})

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		sec := newSecurity(t, func(c *session.Config) {
			c.EncryptionEnabled = true
			c.EncryptionKey = secrets.EncodeKey(key)
		})
		assert.True(t, sec.EncryptionEnabled())

		in := sampleSession()
		data, err := sec.EncryptSessionData(in)
		require.NoError(t, err)
		out, err := sec.DecryptSessionData(data)
		require.NoError(t, err)
		assertSameSession(t, in, out)

		data[len(data)-1] ^= 0xff
		out, err = sec.DecryptSessionData(data)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, session.ErrSecurity)
	})

	t.Run("bad key", func(t *testing.T) {
		t.Parallel()
		cfg := session.DefaultConfig()
		cfg.EncryptionEnabled = true
		cfg.EncryptionKey = "not-a-key"
		_, err := session.NewSecurity(cfg, nil)
		assert.ErrorIs(t, err, session.ErrSecurity)
	})
}

func TestSecurity_ValidateIntegrity(t *testing.T) {
	t.Parallel()

	sec := newSecurity(t, nil)
	now := time.Now()
	assert.NoError(t, sec.ValidateIntegrity(validSession(now)))

	s := validSession(now)
	s.CreatedAt = now.Add(time.Hour)
	err := sec.ValidateIntegrity(s)
	assert.ErrorIs(t, err, session.ErrSecurity)
	assert.ErrorIs(t, err, session.ErrIntegrity)
}

func TestSecurity_SanitizeMetadata(t *testing.T) {
	t.Parallel()

	sec := newSecurity(t, nil)
	got := sec.SanitizeMetadata(map[string]any{
		"plan":        "pro",
		"seats":       10,
		"__proto__":   "x",
		"constructor": "y",
		"prototype":   "z",
		"nested":      map[string]any{"a": 1},
		"":            "empty",
	})
	assert.Equal(t, map[string]any{"plan": "pro", "seats": float64(10)}, got)

	assert.NotNil(t, sec.SanitizeMetadata(nil))

	long := strings.Repeat("a", 10000)
	got = sec.SanitizeMetadata(map[string]any{"long": long})
	assert.Len(t, got["long"], 4096)

	many := make(map[string]any, 100)
	for i := range 100 {
		many[strings.Repeat("k", i+1)] = i
	}
	assert.Len(t, sec.SanitizeMetadata(many), 64)
}

func TestSecurity_CheckSessionLimits(t *testing.T) {
	t.Parallel()

	now := time.Now()
	live := func() *session.Session { return &session.Session{ExpiresAt: now.Add(time.Hour)} }
	dead := func() *session.Session { return &session.Session{ExpiresAt: now.Add(-time.Hour)} }

	sec := newSecurity(t, func(c *session.Config) { c.MaxSessionsPerUser = 2 })
	assert.True(t, sec.CheckSessionLimits(nil))
	assert.True(t, sec.CheckSessionLimits([]*session.Session{live()}))
	assert.False(t, sec.CheckSessionLimits([]*session.Session{live(), live()}))
	assert.True(t, sec.CheckSessionLimits([]*session.Session{live(), dead(), dead()}))

	unlimited := newSecurity(t, func(c *session.Config) { c.MaxSessionsPerUser = 0 })
	assert.True(t, unlimited.CheckSessionLimits([]*session.Session{live(), live(), live()}))
}

func TestSecurity_GenerateID(t *testing.T) {
	t.Parallel()

	sec := newSecurity(t, nil)
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := sec.GenerateID()
		assert.Len(t, id, 43)
		assert.NotContains(t, id, "=")
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateID_DegradedFallback(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	a := session.GenerateIDFrom(failingReader{}, log)
	b := session.GenerateIDFrom(failingReader{}, log)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.Contains(t, buf.String(), "degraded=true")
	assert.Contains(t, buf.String(), "entropy exhausted")
}
