package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxPatternLen = 200

const (
	redactedKey     = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
)

// PanicValue renders a recovered panic value as a string field, so it
// passes through pattern redaction like any other string.
func PanicValue(v any) zap.Field {
	return zap.String("panic", fmt.Sprint(v))
}

// redactor rewrites top-level fields whose key is sensitive, or whose
// string or error value matches a secret pattern. A nil redactor passes
// fields through.
type redactor struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	r := &redactor{keys: make(map[string]bool, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) matches(s string) bool {
	for _, re := range r.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func (r *redactor) field(f zapcore.Field) (zapcore.Field, bool) {
	if r.keys[strings.ToLower(f.Key)] {
		return zap.String(f.Key, redactedKey), true
	}
	switch f.Type {
	case zapcore.StringType:
		if r.matches(f.String) {
			return zap.String(f.Key, redactedPattern), true
		}
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok && r.matches(string(b)) {
			return zap.String(f.Key, redactedPattern), true
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil && r.matches(err.Error()) {
			return zap.String(f.Key, redactedPattern), true
		}
	}
	return f, false
}

// fields returns fs with sensitive entries rewritten, copying only when
// something changed.
func (r *redactor) fields(fs []zapcore.Field) []zapcore.Field {
	if r == nil {
		return fs
	}
	var out []zapcore.Field
	for i, f := range fs {
		rf, changed := r.field(f)
		if changed && out == nil {
			out = make([]zapcore.Field, len(fs))
			copy(out, fs)
		}
		if out != nil {
			out[i] = rf
		}
	}
	if out == nil {
		return fs
	}
	return out
}

func (r *redactor) wrap(core zapcore.Core) zapcore.Core {
	if r == nil {
		return core
	}
	return &redactCore{Core: core, r: r}
}

// redactCore applies a redactor to everything written through a core,
// including fields attached with With.
type redactCore struct {
	zapcore.Core
	r *redactor
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(c.r.fields(fields)), r: c.r}
}

func (c *redactCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, c.r.fields(fields))
}
