package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages outside infra can accept a logger
// without importing zerolog themselves.
type Logger = zerolog.Logger

// NewLogger builds the process logger. Development gets debug level and a
// human readable console writer, every other environment logs JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "mediagen").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// DiscardLogger returns a logger that drops everything. Components use it
// when the caller does not inject one.
func DiscardLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// LoggerOrDiscard dereferences l, falling back to a discard logger.
func LoggerOrDiscard(l *Logger) zerolog.Logger {
	if l == nil {
		return *DiscardLogger()
	}
	return *l
}
