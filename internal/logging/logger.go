// Package logging provides the structured logger used across seapack.
//
// Components accept the small Logger interface so tests can pass Nop() and
// the CLI can plug in a slog backed implementation. When running inside a
// GitHub Actions workflow the records are rendered as workflow commands so
// debug output folds away and warnings are annotated on the run.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// EnvGitHubWorkflow is set by GitHub Actions on every workflow run.
const EnvGitHubWorkflow = "GITHUB_WORKFLOW"

// Logger provides structured logging.
// This interface allows users to plug in their own logging implementation.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// Grouper is implemented by loggers that can fold related output together.
type Grouper interface {
	StartGroup(name string)
	EndGroup()
}

// Group starts a named output group on l if it supports grouping and returns
// the function that ends it.
func Group(l Logger, name string) func() {
	g, ok := l.(Grouper)
	if !ok {
		return func() {}
	}
	g.StartGroup(name)
	return g.EndGroup
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, keysAndValues ...any) {}
func (nopLogger) Info(msg string, keysAndValues ...any)  {}
func (nopLogger) Warn(msg string, keysAndValues ...any)  {}
func (nopLogger) Error(msg string, keysAndValues ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

// Options configures New.
type Options struct {
	// Debug enables debug-level records. Workflow command output always
	// includes debug records since the runner hides them unless step
	// debugging is enabled.
	Debug bool

	// Actions renders records as GitHub Actions workflow commands.
	Actions bool
}

// InActions reports whether the process runs inside a GitHub Actions workflow.
func InActions() bool {
	return os.Getenv(EnvGitHubWorkflow) != ""
}

// Slog is a Logger backed by log/slog.
type Slog struct {
	logger  *slog.Logger
	actions *ActionsHandler
}

// New creates a Logger writing to w.
func New(w io.Writer, opts Options) *Slog {
	if opts.Actions {
		h := NewActionsHandler(w)
		return &Slog{logger: slog.New(h), actions: h}
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Slog{logger: slog.New(h)}
}

// FromSlog wraps an existing slog.Logger.
func FromSlog(l *slog.Logger) *Slog {
	return &Slog{logger: l}
}

func (s *Slog) Debug(msg string, keysAndValues ...any) { s.logger.Debug(msg, keysAndValues...) }
func (s *Slog) Info(msg string, keysAndValues ...any)  { s.logger.Info(msg, keysAndValues...) }
func (s *Slog) Warn(msg string, keysAndValues ...any)  { s.logger.Warn(msg, keysAndValues...) }
func (s *Slog) Error(msg string, keysAndValues ...any) { s.logger.Error(msg, keysAndValues...) }

// StartGroup opens a workflow output group. No-op outside GitHub Actions.
func (s *Slog) StartGroup(name string) {
	if s.actions != nil {
		s.actions.command("group", name)
	}
}

// EndGroup closes the current workflow output group.
func (s *Slog) EndGroup() {
	if s.actions != nil {
		s.actions.command("endgroup", "")
	}
}
