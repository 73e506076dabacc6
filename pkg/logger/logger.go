package logger

import (
	"log/slog"
	"os"
)

const serviceName = "books-gateway"

var defaultLogger *slog.Logger

// Init builds the process-wide logger. Production deployments log JSON
// at info level; everything else logs text at debug. Every line carries
// the service name so aggregated logs stay attributable.
func Init(env string) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var handler slog.Handler
	if env == "production" {
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler).With("service", serviceName)
	slog.SetDefault(defaultLogger)
}

// LoggerWrapper returns the process logger, initializing a development
// one on first use so callers never get nil.
func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		Init("development")
	}
	return defaultLogger
}
