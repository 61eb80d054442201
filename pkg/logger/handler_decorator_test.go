package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

type requestKey struct{}

func requestIDFrom(ctx context.Context) (slog.Attr, bool) {
	if id, ok := ctx.Value(requestKey{}).(string); ok {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}

func TestLogHandlerDecorator(t *testing.T) {
	t.Parallel()

	t.Run("no extractors returns the handler unchanged", func(t *testing.T) {
		t.Parallel()
		base := slog.NewTextHandler(&bytes.Buffer{}, nil)
		assert.Same(t, slog.Handler(base), logger.NewLogHandlerDecorator(base, nil))
	})

	t.Run("extracts per call and survives WithAttrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		h := logger.NewLogHandlerDecorator(slog.NewTextHandler(&buf, nil), requestIDFrom)
		log := slog.New(h).With(logger.Component("cleaner"))

		log.InfoContext(context.WithValue(context.Background(), requestKey{}, "r1"), "first")
		log.InfoContext(context.WithValue(context.Background(), requestKey{}, "r2"), "second")
		log.InfoContext(context.Background(), "third")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Len(t, lines, 3)
		assert.Contains(t, lines[0], "request_id=r1")
		assert.Contains(t, lines[1], "request_id=r2")
		assert.NotContains(t, lines[2], "request_id")
		assert.Contains(t, lines[2], "component=cleaner")
	})
}
