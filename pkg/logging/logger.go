// Package logging configures zerolog for the tap.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr. Records go to stdout, so logs never do.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "zoomphone-tap").Logger()
	log.Logger = logger
	return logger
}

// ParseLevel converts a level name to a zerolog level. Unknown names map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(level)))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: paging decisions and request flow
//   - request URL and returned cursor per page
//   - cache hit/miss for call detail
//   - token issue and invalidation
//
// Info: run progress
//   - sync and stream start/finish with record counts
//   - date window advanced
//   - waiting for a rate limit reset
//
// Warn: degraded but continuing
//   - retry attempts
//   - rate limit throttling
//   - child record not found
//   - cache or shared state unavailable
//
// Error: the run stops
//   - stream failed after retries
//   - token request failed
//   - configuration errors
//
// Context Fields:
//   - run_id: one per sync run
//   - stream: stream name
//   - endpoint: path template, e.g. /call_history/{id}
//   - error_class: client, auth, rate_limit, server, network
//   - from, to: date window bounds
//   - sub_page: page position inside the window
