package docmap

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with docmap-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler logs
// text to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (l *Logger) WithType(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("type", name),
	}
}

// LogBatch logs the outcome of a best-effort bulk operation.
func (l *Logger) LogBatch(ctx context.Context, op string, total, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, op+" completed with failures",
			"total", total,
			"failed", failed,
			"success", total-failed,
		)
	} else {
		l.DebugContext(ctx, op+" completed",
			"count", total,
		)
	}
}

// LogSkipped logs a record dropped from a bulk operation.
func (l *Logger) LogSkipped(ctx context.Context, op string, record int, err error) {
	l.WarnContext(ctx, op+" skipped record",
		"record", record,
		"error", err,
	)
}

func defaultLogger(l *Logger) *Logger {
	if l == nil {
		return NewLogger(nil)
	}
	return l
}
