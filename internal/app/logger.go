package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the service logger. prod writes JSON, anything else
// writes text. level ("debug", "info", "warn", "error") overrides the env
// default of INFO for prod and DEBUG otherwise; an unknown level is ignored.
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(env, level)}

	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("svc", "classroom-relay")
}

func parseLevel(env, level string) slog.Level {
	def := slog.LevelDebug
	if env == "prod" {
		def = slog.LevelInfo
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return def
	}
	return l
}
