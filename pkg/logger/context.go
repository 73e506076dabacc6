package logger

import (
	"context"
	"log/slog"
)

type ctxKey string

const loggerKey ctxKey = "books_gateway_logger"

// With stores a child logger carrying the given fields in the context.
// The request-id middleware uses this to tag every log line downstream
// of it with the trace id.
func With(ctx context.Context, fields ...any) context.Context {
	l := From(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, l)
}

// From returns the context's logger, falling back to the process one.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return LoggerWrapper()
}
