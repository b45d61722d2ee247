package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// redactedObserver returns a logger whose observed entries have passed
// through the default redaction rules.
func redactedObserver(t *testing.T, cfg RedactionConfig) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	r, err := newRedactor(cfg)
	require.NoError(t, err)
	core, observed := observer.New(TraceLevel)
	return zap.New(r.wrap(core)), observed
}

func TestRedactor_Fields(t *testing.T) {
	logger, observed := redactedObserver(t, NewDefaultConfig().Redaction)

	logger.Info("presenting panic",
		zap.String("token", "abc"),
		zap.String("header", "Bearer xyz"),
		PanicValue("api_key=hunter2"),
		zap.Error(errors.New("dial: bearer s3cret")),
		zap.ByteString("body", []byte("Authorization: Bearer b")),
		zap.String("file", "main.go"),
		zap.Int("line", 12),
	)

	require.Len(t, observed.All(), 1)
	got := observed.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", got["token"])
	assert.Equal(t, "[REDACTED:pattern]", got["header"])
	assert.Equal(t, "[REDACTED:pattern]", got["panic"])
	assert.Equal(t, "[REDACTED:pattern]", got["error"])
	assert.Equal(t, "[REDACTED:pattern]", got["body"])
	assert.Equal(t, "main.go", got["file"])
	assert.Equal(t, int64(12), got["line"])
}

func TestRedactor_WithFields(t *testing.T) {
	logger, observed := redactedObserver(t, NewDefaultConfig().Redaction)

	logger.With(zap.String("password", "p")).Info("scope entered")

	require.Len(t, observed.All(), 1)
	assert.Equal(t, "[REDACTED]", observed.All()[0].ContextMap()["password"])
}

func TestRedactor_Disabled(t *testing.T) {
	logger, observed := redactedObserver(t, RedactionConfig{})

	logger.Info("m", zap.String("token", "abc"))
	assert.Equal(t, "abc", observed.All()[0].ContextMap()["token"])
}

func TestRedactor_BadPattern(t *testing.T) {
	_, err := newRedactor(RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}

func TestRedactor_UnchangedFieldsNotCopied(t *testing.T) {
	r, err := newRedactor(NewDefaultConfig().Redaction)
	require.NoError(t, err)

	fs := []zapcore.Field{zap.String("file", "main.go")}
	out := r.fields(fs)
	assert.Same(t, &fs[0], &out[0])
}
