// Package process runs caller-supplied scripts and captures their exit status
// and output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for script execution.
var (
	ErrEmptyCommand  = errors.New("empty command")
	ErrScriptMissing = errors.New("script not found")
	ErrTimeout       = errors.New("script timed out")
)

// defaultShell interprets script strings so callers may pass pipelines or
// inline arguments.
const defaultShell = "/bin/sh"

// waitDelay bounds how long output pipes are drained after a timed-out
// script is killed; grandchildren may keep them open.
const waitDelay = 2 * time.Second

// outputTailBytes bounds the captured output quoted in error messages.
const outputTailBytes = 2048

// Command describes a single script invocation.
type Command struct {
	// Script is a path or shell command line.
	Script string
	// Args are appended to the script as separate, unquoted arguments.
	Args []string
	// Env holds extra KEY=VALUE pairs layered over the process environment.
	Env []string
}

// String renders the command for logs and diagnostics.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Script
	}

	return c.Script + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a script that ran to completion.
type Result struct {
	// ExitCode is -1 when the script was terminated by a signal.
	ExitCode int
	// Signaled reports that the script did not exit on its own.
	Signaled bool
	// Output interleaves stdout and stderr.
	Output string
	// Stdout holds standard output alone.
	Stdout   string
	Duration time.Duration
}

// Success reports whether the script exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands. Implementations block until the command exits.
// A non-zero exit status is reported in Result, not as an error; errors mean
// the command could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands through a shell.
type ExecRunner struct {
	// Shell defaults to /bin/sh.
	Shell string
	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration
	// Echo, when set, receives script output as it is produced.
	Echo io.Writer
	// Logger receives one debug record per invocation.
	Logger *slog.Logger
}

// NewExecRunner creates a runner with the default shell.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExecRunner{Shell: defaultShell, Logger: logger}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if strings.TrimSpace(cmd.Script) == "" {
		return Result{}, ErrEmptyCommand
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	shell := r.Shell
	if shell == "" {
		shell = defaultShell
	}

	// "$@" forwards Args without re-splitting or quoting them.
	argv := append([]string{"-c", cmd.Script + ` "$@"`, "sh"}, cmd.Args...)
	execCmd := exec.CommandContext(ctx, shell, argv...)
	execCmd.Env = append(os.Environ(), cmd.Env...)
	execCmd.WaitDelay = waitDelay
	isolate(execCmd)

	var stdout, output bytes.Buffer

	var combined io.Writer = &output
	if r.Echo != nil {
		combined = io.MultiWriter(&output, r.Echo)
	}

	sink := &lockedWriter{w: combined}

	execCmd.Stdout = io.MultiWriter(&stdout, sink)
	execCmd.Stderr = sink

	start := time.Now()
	runErr := execCmd.Run()
	result := Result{Output: output.String(), Stdout: stdout.String(), Duration: time.Since(start)}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return result, fmt.Errorf("%w after %s: %s", ErrTimeout, r.Timeout, cmd)
	}

	var exitErr *exec.ExitError

	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Signaled = result.ExitCode == -1
	default:
		return result, fmt.Errorf("run %q: %w", cmd.Script, runErr)
	}

	r.logger().Debug("script finished",
		"command", cmd.Script,
		"args", len(cmd.Args),
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)

	return result, nil
}

// lockedWriter serializes the stdout and stderr copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}

	return r.Logger
}

// Lookup checks that the executable named by the first word of script exists.
func Lookup(script string) error {
	fields := strings.Fields(script)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}

	_, err := exec.LookPath(fields[0])
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScriptMissing, fields[0], err)
	}

	return nil
}

// ScriptError reports a script that exited unsuccessfully where success was
// required.
type ScriptError struct {
	Command  string
	ExitCode int
	Output   string
}

// NewScriptError builds a ScriptError from a finished invocation.
func NewScriptError(cmd Command, res Result) *ScriptError {
	return &ScriptError{Command: cmd.String(), ExitCode: res.ExitCode, Output: res.Output}
}

// Error implements error.
func (e *ScriptError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", truncate(e.Command, outputTailBytes), e.ExitCode)

	out := strings.TrimSpace(e.Output)
	if out == "" {
		return msg
	}

	if len(out) > outputTailBytes {
		out = "..." + out[len(out)-outputTailBytes:]
	}

	return msg + "\n" + out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
