// Package logger builds *slog.Logger instances for metastates services and
// the CLI.
//
// New returns a logger configured by functional options: output format
// (JSON or text), minimum level, static attributes and ContextExtractor
// functions that pull values out of context.Context on every record. The
// extractors run inside LogHandlerDecorator, which wraps the concrete slog
// handler.
//
// Attribute helpers (OwnerKind, OwnerID, StateID, StateType, Status,
// CallbackID, Rules, Error, Duration) keep key names consistent between the
// state service, the dispatcher and the stores.
//
// Usage:
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "metastates"),
//		logger.WithContextExtractors(logger.Owner),
//	)
//	logger.SetAsDefault(log)
//
//	ctx = logger.ContextWithOwner(ctx, "user", userID)
//	log.InfoContext(ctx, "state added", logger.StateType("kyc"), logger.Status("pending"))
package logger
