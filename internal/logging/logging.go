// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the shared logger instance.
var Log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Log = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Setup reconfigures the shared logger. level is one of debug/info/warn/error
// (case-insensitive, defaults to info); format is "console" or "json".
func Setup(level, format string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if strings.ToLower(format) == "json" {
		Log = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Log = zerolog.New(output).With().Timestamp().Logger()
}

// Stage returns a logger tagged with a test name and pipeline stage.
func Stage(test, stage string) zerolog.Logger {
	return Log.With().Str("test", test).Str("stage", stage).Logger()
}
