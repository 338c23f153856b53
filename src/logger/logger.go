// Package logger owns the process-wide structured logger. The whole codebase
// logs through the global L so that a single InitLogger call at startup
// controls level and format for every package, including the tax engine's
// replay diagnostics.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// L is the global logger. Nil until InitLogger runs; code that can execute
// before startup finishes (database bootstrap) must fall back to the
// standard library logger.
var L *slog.Logger

// InitLogger builds a JSON logger at the configured level and installs it as
// slog's default. Timestamps are emitted as RFC3339 so log lines sort and
// parse the same way the engine's own dates do.
func InitLogger(logLevelStr string) {
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		slog.Warn("Unknown LOG_LEVEL, defaulting to INFO", "configuredLevel", logLevelStr)
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	L = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(L)
	L.Info("Logger initialized", "level", level.String())
}
