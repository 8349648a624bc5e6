// Package logging builds the slog.Logger used across the orchestration
// builder. It hands back a plain *slog.Logger rather than a wrapper
// type, since every collaborator (engine.Engine, outbox.Publisher, the
// restapi middleware) takes one directly.
package logging

import (
	"log/slog"
	"os"

	"github.com/aobuilder/aob/internal/config"
)

// New builds a *slog.Logger from cfg: JSON or text handler, writing to
// stdout, with source locations attached only at debug level.
func New(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// parseLevel parses a log level string to slog.Level, defaulting to
// info for anything unrecognized.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init builds a logger from cfg and installs it as both the process
// default (slog.SetDefault) and the return value, so cmd/ entry points
// can do `log := logging.Init(cfg)` once at startup and have every
// package-level slog.Info/slog.Error call elsewhere pick it up too.
func Init(cfg config.LoggingConfig) *slog.Logger {
	l := New(cfg)
	slog.SetDefault(l)
	return l
}
