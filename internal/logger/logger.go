// Package logger builds the service-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "journal-portal"

// New creates a structured logger. Development environments get the
// human-readable console writer; everything else writes JSON to stdout.
func New(env, level string) zerolog.Logger {
	return NewWithWriter(env, level, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env, level string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl := parseLevel(level)
	if env == "development" || env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			Level(lvl).
			With().
			Timestamp().
			Caller().
			Str("service", serviceName).
			Logger()
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Audit returns the logger used for authentication and authorization events.
func Audit(log zerolog.Logger) zerolog.Logger {
	return log.With().Str("component", "audit").Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
