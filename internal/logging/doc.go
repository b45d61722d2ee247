// Package logging provides structured logging for xtraceback.
//
// # Overview
//
// Logging wraps Zap with:
//   - a Trace level (-2, below Debug) for hook invocations
//   - stderr and OpenTelemetry outputs
//   - context fields: trace_id, span_id, scope.activation_id
//   - redaction of sensitive keys and secret-looking values on every output,
//     since panic values carry whatever the failing code had in hand
//   - sampling below Error; errors are never sampled
//
// Logs go to stderr: stdout belongs to the program being guarded.
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithActivationID(ctx, id)
//	logger.Debug(ctx, "traceback scope entered")
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
