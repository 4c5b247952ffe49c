package magvec

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger is the structured logger of a Store. Its Log helpers keep field
// names consistent across stores.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithPath tags every line with the store file, ":memory:" for featurizers.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{Logger: l.Logger.With("path", path)}
}

// LogOpen logs the outcome of opening a store.
func (l *Logger) LogOpen(ctx context.Context, rows int64, dim int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed", "error", err)
		return
	}
	l.InfoContext(ctx, "store opened", "rows", rows, "dimension", dim)
}

// LogQuery logs a key lookup.
func (l *Logger) LogQuery(ctx context.Context, keys, oov int, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed", "keys", keys, "error", err)
		return
	}
	l.DebugContext(ctx, "query completed", "keys", keys, "oov", oov, "took", took)
}

// LogSearch logs a similarity search.
func (l *Logger) LogSearch(ctx context.Context, topn, resultsFound int, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "topn", topn, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed", "topn", topn, "results", resultsFound, "took", took)
}

// LogPreload logs the end of a cache preload.
func (l *Logger) LogPreload(ctx context.Context, loaded int, err error) {
	if err != nil {
		l.WarnContext(ctx, "preload stopped", "loaded", loaded, "error", err)
		return
	}
	l.InfoContext(ctx, "preload completed", "loaded", loaded)
}
