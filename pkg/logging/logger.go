// Package logging provides structured logging configuration using zerolog.
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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output. Matching is case-insensitive,
	// so environment values such as "INFO" work as is.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is attached to every entry when non-empty.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "credly-ingest",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "critical":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRun returns a child logger tagged with an invocation's identity.
func WithRun(logger zerolog.Logger, runID, loadType, mode string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Str("load_type", loadType).
		Str("mode", mode).
		Logger()
}

// Log Level Guidelines:
//
// Debug: request flow and internal state
//   - Outgoing requests (method, endpoint without query, attempt)
//   - Cursor presence, computed date windows
//   - Object keys listed before a partition clear
//
// Info: normal pipeline events
//   - Invocation start/finish with records processed
//   - Partition cleared, part file written
//   - Watermark or fingerprint persisted
//   - Fingerprint match (load skipped)
//
// Warn: degraded but continuing
//   - Retry attempts
//   - Partition clear failures (run continues)
//   - Fingerprint lookup failures (forces a full reload)
//   - API quota nearly exhausted
//
// Error: the invocation fails
//   - Retries exhausted, upstream 4xx
//   - Part file write failures
//   - Configuration and authentication errors
//
// Context Fields:
//   - component: emitting package
//   - run_id, load_type, mode: invocation identity
//   - dataset, partition_date, part, key: sink locations
//   - endpoint, status, error_class, attempt: HTTP activity
//   - records: records in a page or chunk
