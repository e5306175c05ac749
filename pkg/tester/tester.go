// Package tester runs the caller's test-setup and test scripts and reduces
// their exit statuses to a verdict.
package tester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/bisector/pkg/process"
)

// Sentinel errors for test invocation.
var (
	ErrNoTestScript = errors.New("no test script configured")
	// ErrTerminated accompanies a bad verdict or a -1 exit status when the
	// script was killed by a signal instead of exiting.
	ErrTerminated = errors.New("script terminated by a signal")
)

// Verdict is the outcome of one test run.
type Verdict int

// Verdicts.
const (
	Good Verdict = iota
	Bad
)

// String implements fmt.Stringer.
func (v Verdict) String() string {
	if v == Bad {
		return "bad"
	}

	return "good"
}

// Bad reports whether v is a failing verdict.
func (v Verdict) Bad() bool {
	return v == Bad
}

// FromBool converts a bad flag into a Verdict.
func FromBool(bad bool) Verdict {
	if bad {
		return Bad
	}

	return Good
}

// Invoker runs the test-setup and test scripts.
type Invoker struct {
	runner      process.Runner
	setupScript string
	testScript  string
	logger      *slog.Logger
}

// New creates an Invoker. setupScript may be empty.
func New(runner process.Runner, setupScript, testScript string, logger *slog.Logger) (*Invoker, error) {
	if testScript == "" {
		return nil, ErrNoTestScript
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Invoker{
		runner:      runner,
		setupScript: setupScript,
		testScript:  testScript,
		logger:      logger,
	}, nil
}

// HasSetup reports whether a test-setup script is configured.
func (inv *Invoker) HasSetup() bool {
	return inv.setupScript != ""
}

// RunTestSetup runs the setup script and returns its exit status. Without a
// setup script it returns 0.
func (inv *Invoker) RunTestSetup(ctx context.Context, env []string) (int, error) {
	if inv.setupScript == "" {
		return 0, nil
	}

	return inv.run(ctx, "test setup", inv.setupScript, env)
}

// RunTest runs the test script and returns its exit status.
func (inv *Invoker) RunTest(ctx context.Context, env []string) (int, error) {
	return inv.run(ctx, "test", inv.testScript, env)
}

// Verdict runs setup then test. A failing setup is a bad verdict and the test
// is skipped. Errors mean a script could not be run at all, except
// ErrTerminated, which comes with a bad verdict the caller may keep.
func (inv *Invoker) Verdict(ctx context.Context, env []string) (Verdict, error) {
	setupCode, err := inv.RunTestSetup(ctx, env)
	if err != nil {
		return Bad, err
	}

	if setupCode != 0 {
		inv.logger.Info("test setup failed, counting as bad", "exit_code", setupCode)

		return Bad, nil
	}

	testCode, err := inv.RunTest(ctx, env)
	if err != nil {
		return Bad, err
	}

	return FromBool(testCode != 0), nil
}

func (inv *Invoker) run(ctx context.Context, what, script string, env []string) (int, error) {
	res, err := inv.runner.Run(ctx, process.Command{Script: script, Env: env})
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", what, err)
	}

	inv.logger.Debug("script exited", "script", what, "exit_code", res.ExitCode, "duration", res.Duration)

	if res.Signaled {
		return res.ExitCode, fmt.Errorf("%w: %s", ErrTerminated, what)
	}

	return res.ExitCode, nil
}
