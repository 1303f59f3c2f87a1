// Package toolexec runs external tools from an argument vector.
//
// Commands never pass through a shell. Output is captured so a failing tool
// can be reported with what it printed, and arguments marked secret (such as
// a certificate password) are replaced before they reach an error message
// or a log line.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 10 * time.Minute

// Redacted replaces secret arguments in messages.
const Redacted = "[REDACTED]"

// maxOutputInError caps how much captured output an error message carries.
const maxOutputInError = 2000

// Command is one external tool invocation.
type Command struct {
	// Name is the executable, resolved through PATH if not a path.
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is added to the inherited environment as KEY=VALUE pairs.
	Env []string
	// Secrets lists argument values to redact from logs and errors.
	Secrets []string
	// Timeout overrides the runner's default timeout.
	Timeout time.Duration
}

// String returns the command line with secrets redacted.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.RedactedArgs()...)
	return strings.Join(parts, " ")
}

// RedactedArgs returns Args with every secret replaced.
func (c Command) RedactedArgs() []string {
	out := make([]string, len(c.Args))
	for i, arg := range c.Args {
		out[i] = c.redact(arg)
	}
	return out
}

func (c Command) redact(s string) string {
	for _, secret := range c.Secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, Redacted)
		}
	}
	return s
}

// Result is the outcome of a successful run.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExternalToolError reports a tool that could not start or exited non-zero.
type ExternalToolError struct {
	Tool string
	// Args are redacted.
	Args []string
	// ExitCode is -1 if the process did not exit normally.
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Tool)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if out := strings.TrimSpace(e.Stderr); out != "" {
		fmt.Fprintf(&b, ": %s", truncate(out))
	} else if out := strings.TrimSpace(e.Stdout); out != "" {
		fmt.Fprintf(&b, ": %s", truncate(out))
	}
	return b.String()
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

func truncate(s string) string {
	if len(s) > maxOutputInError {
		return s[:maxOutputInError] + "..."
	}
	return s
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	timeout time.Duration
	logger  logging.Logger
}

// NewExecRunner creates a runner. A zero timeout means DefaultTimeout.
func NewExecRunner(timeout time.Duration, logger logging.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ExecRunner{timeout: timeout, logger: logger}
}

// Run executes cmd and waits for it. A non-zero exit or a failure to start
// returns *ExternalToolError carrying the captured output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Debug("running external tool", "command", cmd.String())

	//nolint:gosec // G204: argv comes from seapack itself, never a shell string
	c := exec.CommandContext(execCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   cmd.redact(stdout.String()),
		Stderr:   cmd.redact(stderr.String()),
		Duration: time.Since(start),
	}

	if err == nil {
		if out := strings.TrimSpace(res.Stdout); out != "" {
			r.logger.Debug("external tool output", "tool", cmd.Name, "stdout", out)
		}
		return res, nil
	}

	toolErr := &ExternalToolError{
		Tool:     cmd.Name,
		Args:     cmd.RedactedArgs(),
		ExitCode: -1,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		toolErr.ExitCode = exitErr.ExitCode()
	case execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		toolErr.Err = fmt.Errorf("timed out after %v", timeout)
	case ctx.Err() != nil:
		toolErr.Err = ctx.Err()
	default:
		toolErr.Err = errors.New(cmd.redact(err.Error()))
	}
	return res, toolErr
}
