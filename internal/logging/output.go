package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// otelScope is the instrumentation scope of records sent through the OTEL
// log bridge.
const otelScope = "github.com/fyrsmithlabs/xtraceback/internal/logging"

// newCore assembles the outputs. Each output gets its own redaction
// wrapper, so panic values are scrubbed before they leave the process by
// either route; sampling sits on top of both.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	r, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if cfg.Output.Stderr {
		stderr := zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stderr), cfg.Level)
		cores = append(cores, r.wrap(stderr))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		otel := otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(otelProvider))
		cores = append(cores, r.wrap(&bandCore{Core: otel, band: cfg.Level}))
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

// newEncoder returns the console encoder for humans reading a terminal, or
// JSON for collectors.
func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = encodeLevel

	if format == "console" {
		ec.EncodeLevel = encodeCapitalLevel
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}
