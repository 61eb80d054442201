// Command sessiond runs the session engine as a standalone daemon: it owns
// the storage backend, the background cleaner and the admin HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/sessionkit/modules/admin"
	"github.com/dmitrymomot/sessionkit/pkg/config"
	"github.com/dmitrymomot/sessionkit/pkg/httpserver"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

type appConfig struct {
	// AdminToken protects the admin routes; empty leaves them open.
	AdminToken string `env:"SESSIOND_ADMIN_TOKEN"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sessiond:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		appCfg     appConfig
		logCfg     logger.Config
		sessionCfg session.Config
		httpCfg    httpserver.Config
	)
	if err := errors.Join(
		config.Load(&appCfg),
		config.Load(&logCfg),
		config.Load(&sessionCfg),
		config.Load(&httpCfg),
	); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.NewFromConfig(logCfg, logger.WithContextExtractors(admin.RequestIDExtractor()))
	logger.SetAsDefault(log)

	if err := sessionCfg.Validate(); err != nil {
		return err
	}
	security, err := session.NewSecurity(sessionCfg, log)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, sessionCfg.StorageBackend, security.Codec(), log)
	if err != nil {
		return err
	}

	svc, err := session.New(
		session.WithConfig(sessionCfg),
		session.WithStore(b.store),
		session.WithSecurity(security),
		session.WithLogger(log),
	)
	if err != nil {
		b.close()
		return err
	}
	svc.Subscribe(logEvents(log))
	svc.Start(ctx)

	log.InfoContext(ctx, "sessiond started",
		logger.Backend(b.name),
		slog.Bool("cleanup", sessionCfg.CleanupEnabled),
		slog.Bool("encryption", security.EncryptionEnabled()),
	)

	router := admin.Router(svc.Manager(), svc.Cleaner(),
		admin.WithToken(appCfg.AdminToken),
		admin.WithReadiness(b.checks...),
		admin.WithLogger(log),
	)
	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func(l *slog.Logger) {
			if err := svc.Close(); err != nil {
				l.Error("failed to stop session service", logger.Error(err))
			}
			b.close()
		}),
	)

	if err := srv.Run(ctx, router); err != nil {
		// Run fails before Shutdown when the listener cannot be opened.
		_ = svc.Close()
		b.close()
		return err
	}
	log.Info("sessiond stopped")
	return nil
}

func logEvents(log *slog.Logger) session.Listener {
	return func(ctx context.Context, ev session.Event) {
		attrs := []any{
			logger.Event(string(ev.Type)),
			logger.SessionID(ev.SessionID),
		}
		if ev.Reason != "" {
			attrs = append(attrs, logger.Reason(string(ev.Reason)))
		}
		if ev.Session != nil && ev.Session.UserID != "" {
			attrs = append(attrs, logger.UserID(ev.Session.UserID))
		}
		log.DebugContext(ctx, "session event", attrs...)
	}
}
