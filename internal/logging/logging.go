// Package logging builds the zerolog loggers injected into each
// component. Nothing in the core logs through a process-wide singleton;
// constructors receive a logger and derive per-component children.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "RICAGENT_LOG_LEVEL"
	EnvLogNoColor = "RICAGENT_LOG_NOCOLOR"
)

// New returns the root logger for app at the given level, with env
// overrides applied.
func New(app, level string) zerolog.Logger {
	lvl := parseLevel(level)
	if env, ok := lookupLevel(os.Getenv(EnvLogLevel)); ok {
		lvl = env
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    os.Getenv(EnvLogNoColor) != "",
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", app).Logger()
}

// NewWriter returns a logger writing to w, used by tests.
func NewWriter(app string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel).With().Str("app", app).Logger()
}

func parseLevel(raw string) zerolog.Level {
	if lvl, ok := lookupLevel(raw); ok {
		return lvl
	}
	return zerolog.InfoLevel
}

func lookupLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
