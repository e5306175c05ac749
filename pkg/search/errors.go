package search

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/bisector/pkg/tester"
)

// Sentinel errors for orchestration.
var (
	ErrNoItems            = errors.New("no items to search")
	ErrMissingDependency  = errors.New("missing dependency")
	ErrVerificationFailed = errors.New("verification failed")
	ErrCannotResume       = errors.New("cannot resume")
)

// errInterrupted stops a stage whose remaining checks were cut short by
// Interrupt. A verdict obtained from a killed script is discarded with it.
var errInterrupted = errors.New("interrupted before a verdict")

// Partition names used in verification diagnostics.
const (
	partitionGood = "good"
	partitionBad  = "bad"
)

// Script stages used in verification diagnostics.
const (
	stageSetup = "test setup"
	stageTest  = "test"
)

// VerificationError reports a sanity check that produced the wrong verdict.
// It matches ErrVerificationFailed with errors.Is.
type VerificationError struct {
	// Partition is "good" for the all-good split and "bad" for the all-bad split.
	Partition string
	// Stage names the script whose exit status decided the outcome.
	Stage    string
	Expected tester.Verdict
	Got      tester.Verdict
	ExitCode int
}

// Error implements error.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s set: expected %s, got %s (%s exited with status %d)",
		ErrVerificationFailed, e.Partition, e.Expected, e.Got, e.Stage, e.ExitCode)
}

// Unwrap lets errors.Is match ErrVerificationFailed.
func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}
