package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger for the service. Components derive their own
// loggers with log.With().Str("component", ...).Logger().
func New(level string) zerolog.Logger {
	lvl := parseLevel(level)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(lvl).
		With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
