package fingerprint

import (
	"context"
)

type fingerprintContextKey struct{}

// WithContext stores a fingerprint in the context.
func WithContext(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, fingerprintContextKey{}, fingerprint)
}

// FromContext returns the fingerprint stored by WithContext or Middleware.
func FromContext(ctx context.Context) string {
	fingerprint, _ := ctx.Value(fingerprintContextKey{}).(string)
	return fingerprint
}
