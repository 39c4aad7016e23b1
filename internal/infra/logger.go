package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages depend on the infra contract.
type Logger = zerolog.Logger

// NewLogger returns a JSON logger, or a console logger at debug level in
// development.
func NewLogger(appEnv string) zerolog.Logger {
	if appEnv == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Str("service", "mosque-hero").
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(zerolog.InfoLevel).
		With().Timestamp().Str("service", "mosque-hero").Str("env", appEnv).
		Logger()
}

// NopLogger is the default for components constructed without a logger.
func NopLogger() *Logger {
	l := zerolog.Nop()
	return &l
}
