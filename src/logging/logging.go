// Package logging configures the process-wide slog logger.
//
// Logs go to stderr so that stdout carries only command output. The level
// comes from --log-level, then LOG_LEVEL, then defaults to warn so that a
// normal run prints nothing but its progress lines.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel names the environment variable consulted when no level is given.
const EnvLogLevel = "LOG_LEVEL"

// ParseLevel maps debug, info, warn/warning and error (any case) to a level.
// Unknown or empty input yields warn.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New returns a logger tagged with module and version. format is "json" or
// "text"; anything else is text.
func New(w io.Writer, module, version, level, format string) *slog.Logger {
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("module", module, "version", version)
}

// SetDefault installs New(os.Stderr, ...) as the slog default and returns it.
func SetDefault(module, version, level, format string) *slog.Logger {
	l := New(os.Stderr, module, version, level, format)
	slog.SetDefault(l)
	return l
}
