// Package admin exposes session inspection and maintenance over HTTP.
//
// The router is meant for operators and internal tooling, not end users:
// it can list, validate and revoke any session and trigger a cleanup sweep.
// Mount it on a private listener or protect it with WithToken.
//
//	r := chi.NewRouter()
//	r.Mount("/admin", admin.Router(svc.Manager(), svc.Cleaner(),
//	    admin.WithToken(os.Getenv("ADMIN_TOKEN")),
//	    admin.WithReadiness(redis.Healthcheck(client)),
//	))
package admin

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Sessions is the part of session.Manager the admin surface uses.
type Sessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	UserSessions(ctx context.Context, userID string) ([]*session.Session, error)
	TerminateUserSessions(ctx context.Context, userID, exceptID string) (int, error)
	Destroy(ctx context.Context, id string) error
	Validate(ctx context.Context, id, currentFingerprint string) (session.ValidationResult, error)
}

// Cleanup is the part of session.Cleaner the admin surface uses.
type Cleanup interface {
	ForceCleanup(ctx context.Context) (session.CleanupResult, error)
	Stats(ctx context.Context) (session.CleanupStats, error)
}

type options struct {
	token     string
	readiness []func(context.Context) error
	logger    *slog.Logger
}

// Option configures the admin router.
type Option func(*options)

// WithToken requires "Authorization: Bearer <token>" on every route except /healthz.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithReadiness adds dependency checks run by /healthz.
func WithReadiness(checks ...func(context.Context) error) Option {
	return func(o *options) {
		o.readiness = append(o.readiness, checks...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Router builds the admin routes.
func Router(sessions Sessions, cleanup Cleanup, opts ...Option) chi.Router {
	o := &options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	h := &handler{
		sessions: sessions,
		cleanup:  cleanup,
		logger:   o.logger.With(logger.Component("admin")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz(o.readiness))

	r.Group(func(r chi.Router) {
		if o.token != "" {
			r.Use(bearerAuth(o.token))
		}

		r.Route("/cleanup", func(r chi.Router) {
			r.Get("/stats", h.cleanupStats)
			r.Post("/", h.forceCleanup)
		})

		r.Route("/users/{userID}/sessions", func(r chi.Router) {
			r.Get("/", h.userSessions)
			r.Delete("/", h.terminateUserSessions)
		})

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/validate", h.validateSession)
			r.Delete("/", h.destroySession)
		})
	})

	return r
}

// RequestIDExtractor feeds the chi request id into logger.WithContextExtractors.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := middleware.GetReqID(ctx); id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}
