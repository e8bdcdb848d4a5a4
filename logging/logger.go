// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer RunLogger with contextual
// helpers (run, thread, component) and domain specific logging helpers for
// capabilities, run transitions and workflows.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger defines the minimal logging interface for agentrun. Users may
// provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Useful for testing or when logging is
// disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// Config configures construction of a RunLogger.
type Config struct {
	Level     slog.Level
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns a baseline JSON info level configuration.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "json", Output: os.Stdout}
}

// RunLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. Cheap to copy via With* methods.
type RunLogger struct {
	logger    *slog.Logger
	component string
	runID     string
	threadID  string
}

// NewLogger builds a RunLogger from a config (or defaults if nil).
func NewLogger(cfg *Config) *RunLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &RunLogger{logger: slog.New(handler), component: cfg.Component}
}

// WithComponent sets the logical component (engine, workflow, capability).
func (l *RunLogger) WithComponent(c string) *RunLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithRun attaches run and thread identifiers to every subsequent entry.
func (l *RunLogger) WithRun(runID, threadID string) *RunLogger {
	nl := *l
	nl.runID = runID
	nl.threadID = threadID
	return &nl
}

func (l *RunLogger) attrs(extra ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(extra)+3)
	if l.component != "" {
		out = append(out, slog.String("component", l.component))
	}
	if l.runID != "" {
		out = append(out, slog.String("run_id", l.runID))
	}
	if l.threadID != "" {
		out = append(out, slog.String("thread_id", l.threadID))
	}
	return append(out, extra...)
}

func (l *RunLogger) log(level slog.Level, msg string, args ...any) {
	l.logger.LogAttrs(context.Background(), level, msg, append(l.attrs(), argsToAttrs(args)...)...)
}

func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}

// Debug logs at debug level.
func (l *RunLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *RunLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *RunLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *RunLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogCapabilityCall records execution details for a capability invocation.
func (l *RunLogger) LogCapabilityCall(name string, dur time.Duration, err error) {
	extra := []slog.Attr{
		slog.String("capability", name),
		slog.Duration("duration", dur),
		slog.Bool("success", err == nil),
	}
	level := slog.LevelInfo
	msg := "Capability call completed"
	if err != nil {
		extra = append(extra, slog.String("error", err.Error()))
		level = slog.LevelError
		msg = "Capability call failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, l.attrs(extra...)...)
}

// LogRunTransition records an observed run status transition.
func (l *RunLogger) LogRunTransition(runID, from, to string) {
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "Run status changed",
		l.attrs(slog.String("run_id", runID), slog.String("from", from), slog.String("to", to))...)
}

// LogWorkflowExecution records aggregate workflow run metrics.
func (l *RunLogger) LogWorkflowExecution(pattern string, steps int, dur time.Duration, err error) {
	extra := []slog.Attr{
		slog.String("pattern", pattern),
		slog.Int("step_count", steps),
		slog.Duration("duration", dur),
		slog.Bool("success", err == nil),
	}
	level := slog.LevelInfo
	msg := "Workflow completed"
	if err != nil {
		extra = append(extra, slog.String("error", err.Error()))
		level = slog.LevelError
		msg = "Workflow failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, l.attrs(extra...)...)
}
