package logger

import (
	"os"
	"strings"

	"feed-relay/src/models"

	"github.com/rs/zerolog"
)

// -----------------------------------------------------------------------------

// Logger wraps zerolog behind the printf-style calls used across the service.
type Logger struct {
	name string
	zl   zerolog.Logger
}

// -----------------------------------------------------------------------------

// NewLogger creates a logger for the given component name. Level and output
// format come from the log section of the configuration.
func NewLogger(cfg *models.MLogConfig, name string) *Logger {
	level := parseLevel(cfg.Level)

	var zl zerolog.Logger
	if cfg.Console {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	} else {
		zl = zerolog.New(os.Stderr)
	}
	zl = zl.Level(level).With().Timestamp().Str("service", name).Logger()

	return &Logger{name: name, zl: zl}
}

// -----------------------------------------------------------------------------

// Debug logs a debug-level message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

// Info logs an info-level message
func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Warning logs a warn-level message
func (l *Logger) Warning(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

// Error logs an error-level message
func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// Critical logs a fatal-level message without exiting; the caller decides
// whether the condition is terminal.
func (l *Logger) Critical(format string, v ...interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
}

// -----------------------------------------------------------------------------

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
