package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := ActivationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("scope.activation_id", id))
	}

	return fields
}

type activationCtxKey struct{}

// WithActivationID tags the context with a traceback scope activation.
func WithActivationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, activationCtxKey{}, id)
}

// ActivationIDFromContext extracts the scope activation ID from context.
func ActivationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(activationCtxKey{}).(string); ok {
		return id
	}
	return ""
}
