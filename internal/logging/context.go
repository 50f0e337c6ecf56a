package logging

import (
	"context"
	"log/slog"
)

type runIDKey struct{}

type triggerKey struct{}

// WithRunID tags ctx with the identifier of a scheduler run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// WithTrigger tags ctx with the trigger that started a recomputation.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// contextFields extracts standardized slog attributes from ctx.
func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if trigger, ok := ctx.Value(triggerKey{}).(string); ok && trigger != "" {
		fields = append(fields, slog.String(FieldTrigger, trigger))
	}
	return fields
}

// WithContext returns a logger augmented with fields derived from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
