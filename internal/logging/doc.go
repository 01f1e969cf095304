// Package logging builds the zap logger for embedlifed and carries request
// correlation fields through context.
//
// Components take a plain *zap.Logger. The daemon builds one from config:
//
//	cfg, err := logging.FromStrings("info", "json")
//	logger, err := logging.New(cfg)
//	defer logging.Sync(logger)
//
// Request-scoped code derives a logger that carries trace, request and
// tenant ids:
//
//	ctx = logging.WithRequestID(ctx, requestID)
//	ctx = logging.WithTenant(ctx, "acme")
//	logging.For(ctx, logger).Info("document indexed", zap.String("document_id", id))
//
// Tests use a Recorder to assert on emitted entries.
package logging
