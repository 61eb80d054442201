// Package logger builds the slog loggers used across sessionkit.
//
// New assembles a JSON or text handler from functional options; NewFromConfig
// does the same from env configuration (APP_ENV, SERVICE_NAME, LOG_LEVEL,
// LOG_FORMAT). Attributes named "fingerprint" or "encryption_key" are
// redacted before they reach the output.
//
// ContextExtractor callbacks add request-scoped attributes, such as the admin
// request id, on every log call:
//
//	log := logger.NewFromConfig(cfg,
//		logger.WithContextExtractors(admin.RequestIDExtractor()),
//	)
//	log.InfoContext(ctx, "session destroyed",
//		logger.SessionID(sess.ID),
//		logger.UserID(sess.UserID),
//	)
//
// The attribute helpers keep key names consistent. SessionID logs only a
// short prefix because full ids are bearer secrets. Library components take a
// *slog.Logger through options and fall back to Nop.
package logger
