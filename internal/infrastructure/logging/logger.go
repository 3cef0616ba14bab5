package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "clagehs"

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is a slog.Logger carrying the service and version fields.
//
// All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the service logger from the logging section of the config.
//
// Parameters:
//   - cfg: level (debug|info|warn|error), format (json|text), output (stdout|stderr)
//   - version: Build version stamped on every entry
//
// Returns:
//   - *Logger: Configured logger
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a level name to slog.Level. Unknown names mean info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with the subsystem name, e.g.
//
//	log.Component("coordinator").Info("refresh complete")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before the config file has been read: JSON on
// stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
