package orm

import (
	"context"
	"log/slog"
)

// SlogLogger is a Logger writing statements to a *slog.Logger.
type SlogLogger struct {
	l     *slog.Logger
	level slog.Level
}

// NewSlogLogger logs statements to l at debug level. A nil l uses
// slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l, level: slog.LevelDebug}
}

// WithLevel returns a copy logging at level.
func (s *SlogLogger) WithLevel(level slog.Level) *SlogLogger {
	return &SlogLogger{l: s.l, level: level}
}

// Log implements Logger.
func (s *SlogLogger) Log(ctx context.Context, query string, args ...any) {
	s.l.Log(ctx, s.level, "orm query", slog.String("query", query), slog.Any("args", args))
}

var _ Logger = (*SlogLogger)(nil)
