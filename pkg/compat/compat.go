package compat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fyrsmithlabs/xtraceback/internal/logging"
	"github.com/fyrsmithlabs/xtraceback/pkg/excepthook"
	"github.com/fyrsmithlabs/xtraceback/pkg/traceback"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/xtraceback/pkg/compat"

var (
	// ErrAlreadyActive is returned by Enter while a scope is active.
	ErrAlreadyActive = errors.New("compat: scope already active")
	// ErrNotActive is returned by Exit without a matching Enter.
	ErrNotActive = errors.New("compat: scope not active")
	// ErrRestoreFailed wraps a failure to reinstall the saved state.
	ErrRestoreFailed = errors.New("compat: restore presentation state")
	// ErrScopePanicked is the cause passed to Exit when Run's function panics.
	ErrScopePanicked = errors.New("compat: scope panicked")
	// ErrScopeAborted is the cause passed to Exit when Run's function calls
	// runtime.Goexit.
	ErrScopeAborted = errors.New("compat: scope aborted")
)

// Formatter renders a panic value and its dump. *traceback.XTraceback
// implements it.
type Formatter interface {
	Format(w io.Writer, v any, d *traceback.Dump) error
}

// Compat is the scope guard. Enter installs a presentation state that
// renders panics through the formatter; Exit puts back exactly what Enter
// found.
//
// A Compat allows one active scope at a time. All guards share the single
// process-wide excepthook state, so scopes of different guards must nest
// properly: the last Enter wins and its Exit restores what it saw.
type Compat struct {
	formatter Formatter
	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *scopeMetrics

	output      io.Writer
	level       string
	crashOutput *os.File

	mu           sync.Mutex
	active       bool
	saved        *excepthook.State
	activationID string
	ctx          context.Context
	span         trace.Span
}

// Option configures a Compat.
type Option func(*Compat)

// WithLogger sets the logger for scope lifecycle events.
func WithLogger(l *logging.Logger) Option {
	return func(c *Compat) { c.logger = l }
}

// WithMeter sets the meter used for scope metrics.
func WithMeter(m metric.Meter) Option {
	return func(c *Compat) { c.metrics = newScopeMetrics(m) }
}

// WithTracer sets the tracer; each activation is recorded as one span.
func WithTracer(t trace.Tracer) Option {
	return func(c *Compat) { c.tracer = t }
}

// WithOutput sets the writer panics are rendered to while active. By
// default the writer already installed is kept.
func WithOutput(w io.Writer) Option {
	return func(c *Compat) { c.output = w }
}

// WithTraceback sets the runtime traceback level installed while active.
func WithTraceback(level string) Option {
	return func(c *Compat) { c.level = level }
}

// WithCrashOutput sets a file that also receives fatal runtime crash
// reports while active.
func WithCrashOutput(f *os.File) Option {
	return func(c *Compat) { c.crashOutput = f }
}

// New creates an inactive guard rendering through formatter.
func New(formatter Formatter, opts ...Option) *Compat {
	c := &Compat{
		formatter: formatter,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newScopeMetrics(otel.Meter(instrumentationName))
	}
	c.logger = c.logger.Named("compat")
	return c
}

// Active reports whether a scope is active.
func (c *Compat) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ActivationID returns the ID of the active scope, or "" when inactive.
func (c *Compat) ActivationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activationID
}

// Enter records the installed presentation state and installs this
// guard's. It returns ErrAlreadyActive if a scope is already active. If the
// install fails the recorded state is put back and the guard stays inactive.
func (c *Compat) Enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return ErrAlreadyActive
	}

	prev := excepthook.Current()
	next := prev
	next.Hook = c.hook(prev.Hook)
	if c.output != nil {
		next.Output = c.output
	}
	if c.level != "" {
		next.Traceback = c.level
	}
	if c.crashOutput != nil {
		next.CrashOutput = c.crashOutput
	}

	id := uuid.NewString()
	ctx := logging.WithActivationID(context.Background(), id)

	if _, err := excepthook.Install(next); err != nil {
		installErr := fmt.Errorf("compat: install presentation state: %w", err)
		if _, rerr := excepthook.Install(prev); rerr != nil {
			c.metrics.restoreFailures.Add(ctx, 1)
			return errors.Join(installErr, fmt.Errorf("%w: %w", ErrRestoreFailed, rerr))
		}
		c.logger.Warn(ctx, "traceback scope not entered", zap.Error(err))
		return installErr
	}

	ctx, span := c.tracer.Start(ctx, "xtraceback.scope",
		trace.WithAttributes(attribute.String("scope.activation_id", id)))

	c.active = true
	c.saved = &prev
	c.activationID = id
	c.ctx = ctx
	c.span = span

	c.metrics.activations.Add(ctx, 1)
	c.metrics.active.Add(ctx, 1)
	c.logger.Debug(ctx, "traceback scope entered",
		zap.String("traceback", next.Traceback),
		zap.Bool("crash_output", next.CrashOutput != nil))
	return nil
}

// Exit reinstalls the state recorded by the matching Enter. cause describes
// how the scope ended, nil for normal completion; it is recorded but does
// not change what is restored. Exit returns ErrNotActive without a prior
// Enter, and an error wrapping ErrRestoreFailed if the runtime refused part
// of the restore. The hook and output are restored in either case.
func (c *Compat) Exit(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return ErrNotActive
	}

	saved := *c.saved
	ctx, span := c.ctx, c.span
	c.active = false
	c.saved = nil
	c.activationID = ""
	c.ctx = nil
	c.span = nil

	c.metrics.active.Add(ctx, -1)
	defer span.End()

	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, "scope exited abnormally")
	}

	if _, err := excepthook.Install(saved); err != nil {
		c.metrics.restoreFailures.Add(ctx, 1)
		c.logger.Error(ctx, "traceback scope restore failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	fields := []zap.Field{zap.Bool("abnormal", cause != nil)}
	if cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	c.logger.Debug(ctx, "traceback scope exited", fields...)
	return nil
}

// Run calls fn inside a scope. The scope is exited however fn ends: by
// returning, panicking or calling runtime.Goexit. fn's error is never
// masked; a restore failure is joined after it. A panic is re-raised once
// the scope is exited, and a restore failure in that case is logged.
//
// The re-raised panic unwinds from Run's deferred call, so a crash report
// for it shows Run's stack rather than the frames that panicked. To present
// the original frames, defer excepthook.Handle (or excepthook.Recover) at
// the top of fn itself:
//
//	guard.Run(func() (err error) {
//		defer excepthook.Recover(&err)
//		return work()
//	})
func (c *Compat) Run(fn func() error) error {
	if err := c.Enter(); err != nil {
		return err
	}

	returned := false
	defer func() {
		if returned {
			return
		}
		r := recover()
		cause := ErrScopeAborted
		if r != nil {
			cause = fmt.Errorf("%w: %v", ErrScopePanicked, r)
		}
		if err := c.Exit(cause); err != nil {
			c.logger.Error(context.Background(), "traceback scope exit after abnormal end failed",
				zap.Error(err), logging.PanicValue(r))
		}
		if r != nil {
			panic(r)
		}
	}()

	fnErr := fn()
	returned = true

	if exitErr := c.Exit(fnErr); exitErr != nil {
		return errors.Join(fnErr, exitErr)
	}
	return fnErr
}

// hook returns the excepthook installed while the scope is active. When the
// formatter fails the panic is rendered by fallback, so a broken formatter
// never hides a panic.
func (c *Compat) hook(fallback excepthook.Hook) excepthook.Hook {
	return func(w io.Writer, v any, d *traceback.Dump) {
		ctx := c.scopeContext()
		c.metrics.presented.Add(ctx, 1)
		c.logger.Trace(ctx, "presenting panic", logging.PanicValue(v))

		if err := c.formatter.Format(w, v, d); err != nil {
			c.logger.Warn(ctx, "traceback formatter failed, using previous hook", zap.Error(err))
			fallback(w, v, d)
		}
	}
}

func (c *Compat) scopeContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}
