// Package logger builds *slog.Logger instances for the notification engine
// and its binaries.
//
// New assembles a JSON or text slog.Handler from functional options and wraps
// it with a decorating handler that pulls request-scoped attributes out of
// context.Context on every record. Attribute helpers (UserID, Error, Stage,
// NotificationID, ...) keep key names consistent across packages so that a
// single notification's decision path can be reconstructed from the logs.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "notifyd"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	logger.SetAsDefault(log)
//
//	log.ErrorContext(ctx, "priority stage failed",
//	    logger.UserID(req.RecipientUserID),
//	    logger.NotificationType(req.Type),
//	    logger.Stage("priority"),
//	    logger.Error(err),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
