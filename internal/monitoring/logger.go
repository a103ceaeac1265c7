// Package monitoring gives the extension host its loggers and counters.
//
// DESIGN: One host logger, many children:
//   - the host process logs through Global(), which also becomes log.Logger
//   - every loaded extension gets ForExtension(id), tagged extension_id
//   - host subsystems (pipeline driver, IPC bridge) get ForComponent(name)
//
// An empty format means "auto": console when the output is a terminal,
// JSON otherwise, so piped host logs stay machine-readable.
//
// FILES:
//   - logger.go:  zerolog host logger and its children
//   - metrics.go: atomic counters for runs, hooks, helpers and lifecycle
package monitoring

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// LoggerConfig mirrors the monitoring section of the host config.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // trace..error, default info
	Format string `yaml:"format"` // json, console, "" = auto
	Output string `yaml:"output"` // stdout, stderr (default) or a file path
}

// Logger is the host logger. Extensions never see it directly, only the
// children derived from it.
type Logger struct {
	zl zerolog.Logger
}

// New builds a host logger from cfg. An unreadable level falls back to info
// and an unopenable file falls back to stderr.
func New(cfg LoggerConfig) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := openOutput(cfg.Output)
	if useConsole(cfg.Format, out) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return &Logger{zl: zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()}
}

// NewWithWriter builds a JSON logger over w, for tests.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Global builds the host logger and installs it as log.Logger, which the
// SDK packages fall back to when no logger is injected.
func Global(cfg LoggerConfig) *Logger {
	logger := New(cfg)
	log.Logger = logger.zl
	return logger
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func openOutput(output string) io.Writer {
	switch output {
	case "", "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return os.Stderr
	}
	return f
}

func useConsole(format string, out io.Writer) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// CHILD LOGGERS
// =============================================================================

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// ForExtension returns the logger handed to one extension.
func (l *Logger) ForExtension(extensionID string) zerolog.Logger {
	return l.zl.With().Str("extension_id", extensionID).Logger()
}

// ForComponent returns a logger for a host subsystem.
func (l *Logger) ForComponent(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
