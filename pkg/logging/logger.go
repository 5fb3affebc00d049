// Package logging configures structured zerolog output for the edge cache.
package logging

import (
	"io"
	"os"
	"strings"

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

	// Pretty enables human-readable console output instead of JSON lines.
	Pretty bool

	// Output is the destination writer (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level.
// Unknown values fall back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger from the global one tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug:
//   - Cache hit/miss per request, evictions
//   - Access log lines (method, path, status, duration)
//   - Permit acquire/release
//
// Info:
//   - Server startup/shutdown, listen address, negotiated TLS settings
//   - Warm-up summary
//
// Warn:
//   - TLS handshake or ALPN failures (connection dropped)
//   - Origin errors and retry attempts
//   - Admission rejections when an acquire timeout is configured
//
// Error:
//   - Fatal startup problems (TLS materials, bind failure, origin unreachable)
//   - Serve loop termination
//
// Context Fields:
//   - component: emitting package
//   - path: request path (cache key)
//   - cache: "hit" or "miss"
//   - origin: backend name
//   - remote: client address
//   - proto: negotiated protocol
//   - in_use / capacity: admission state
