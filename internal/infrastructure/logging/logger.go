package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "fritzpresence"

// Logger wraps slog.Logger with Fritz!Presence defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// Option customises logger construction.
type Option func(*options)

type options struct {
	debug  bool
	output io.Writer
}

// WithDebug forces the debug level regardless of the configured level.
// It maps the "Debug" operating mode of the presence settings.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithOutput redirects log output, overriding cfg.Output.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New creates a new Logger with the specified configuration.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//   - opts: Optional overrides (debug mode, output writer)
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string, opts ...Option) *Logger {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	output := o.output
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stderr":
			output = os.Stderr
		default:
			output = os.Stdout
		}
	}

	level := parseLevel(cfg.Level)
	if o.debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	routerLogger := logger.With("component", "fritzbox")
//	routerLogger.Info("host list read") // Includes component=fritzbox
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a default logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops everything. Intended for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
