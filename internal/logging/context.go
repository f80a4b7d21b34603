package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent names the subsystem that emitted the line.
	FieldComponent = "component"
	// FieldEventType is a stable machine-readable tag for the event.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldIdentity is the channel identity involved.
	FieldIdentity = "identity"
	// FieldCorrelationID ties a log line to one request/response call.
	FieldCorrelationID = "correlation_id"
	// FieldSessionID identifies one run of the service.
	FieldSessionID = "session_id"
)

type correlationKey struct{}

// WithCorrelationID returns a context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the id stored by WithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns a logger tagged with the correlation id in ctx, if any.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return logger.With(String(FieldCorrelationID, id))
	}
	return logger
}
