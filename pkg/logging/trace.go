package logging

import (
	"context"
	"log/slog"
)

// LevelTrace is below slog.LevelDebug. Records at this level pass only when a log is
// configured with level "trace".
const LevelTrace = slog.Level(-8)

// Trace logs msg at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// TraceDefault logs msg at LevelTrace to the default logger.
func TraceDefault(msg string, args ...any) {
	Trace(slog.Default(), msg, args...)
}

// levelName prints LevelTrace as "TRACE" instead of "DEBUG-4".
func levelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
