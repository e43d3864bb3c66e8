package logger

import (
	"log/slog"
	"os"
)

var Log *slog.Logger

// Setup initializes the global logger. Production gets a JSON handler at
// Info level; everything else gets a human-readable text handler at
// Debug. LOG_LEVEL overrides the level either way ("debug", "info",
// "warn", "error").
func Setup(env string) {
	level := slog.LevelDebug
	if env == "production" {
		level = slog.LevelInfo
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(raw)); err == nil {
			level = parsed
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
}
