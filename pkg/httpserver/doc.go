// Package httpserver runs the sessiond admin listener with configurable
// timeouts and graceful shutdown.
//
// Run blocks until its context is canceled (sessiond cancels it on SIGINT or
// SIGTERM), then gives in-flight requests ShutdownTimeout to finish and runs
// the registered stop hooks.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(func(*slog.Logger) { _ = svc.Close() }),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("admin server", logger.Error(err))
//	}
package httpserver
