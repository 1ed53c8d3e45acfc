// Package logger provides structured logging utilities.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ricesearch/fairrank/internal/pkg/security"
)

type contextKey string

// RequestIDKey is the context key carrying the HTTP request ID.
const RequestIDKey contextKey = "request_id"

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger writing to stderr with the specified level and format.
func New(level, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		return &Logger{
			Logger: l.With("request_id", reqID),
		}
	}
	return l
}

// WithDataset returns a logger with dataset context.
func (l *Logger) WithDataset(name string) *Logger {
	return &Logger{
		Logger: l.With("dataset", security.SanitizeForLog(name)),
	}
}

// WithReport returns a logger with report context.
func (l *Logger) WithReport(id string) *Logger {
	return &Logger{
		Logger: l.With("report_id", id),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}

// Discard returns a logger that drops everything. Used by tests and library callers
// that do not configure logging.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "error", "text")
}
