package search

import (
	"context"

	"github.com/Sumatoshi-tech/bisector/pkg/tester"
)

// verify checks that the all-good split tests good and the all-bad split
// tests bad. A bad environment may legitimately fail setup, so a setup
// failure only counts against the good split. An interrupt between the two
// checks returns errInterrupted.
func (o *Orchestrator) verify(ctx context.Context) error {
	ctx, span := o.deps.Tracer.Start(ctx, "bisector.verify")
	defer span.End()

	o.deps.Logger.InfoContext(ctx, "verifying good and bad sets")

	err := o.withSplit(ctx, o.set.AllGood(), func(env []string) error {
		return o.verifyGood(ctx, env)
	})
	if err != nil {
		return err
	}

	if o.interrupted.Load() {
		return errInterrupted
	}

	err = o.withSplit(ctx, o.set.AllBad(), func(env []string) error {
		return o.verifyBad(ctx, env)
	})
	if err != nil {
		return err
	}

	o.deps.Logger.InfoContext(ctx, "verification passed")

	return nil
}

func (o *Orchestrator) verifyGood(ctx context.Context, env []string) error {
	code, err := o.deps.Tester.RunTestSetup(ctx, env)

	err = o.scriptOutcome(ctx, err)
	if err != nil {
		return err
	}

	if code != 0 {
		return &VerificationError{
			Partition: partitionGood, Stage: stageSetup,
			Expected: tester.Good, Got: tester.Bad, ExitCode: code,
		}
	}

	code, err = o.deps.Tester.RunTest(ctx, env)

	err = o.scriptOutcome(ctx, err)
	if err != nil {
		return err
	}

	if code != 0 {
		return &VerificationError{
			Partition: partitionGood, Stage: stageTest,
			Expected: tester.Good, Got: tester.Bad, ExitCode: code,
		}
	}

	return nil
}

func (o *Orchestrator) verifyBad(ctx context.Context, env []string) error {
	code, err := o.deps.Tester.RunTestSetup(ctx, env)

	err = o.scriptOutcome(ctx, err)
	if err != nil {
		return err
	}

	if code != 0 {
		o.deps.Logger.InfoContext(ctx, "test setup failed on bad set, skipping test", "exit_code", code)

		return nil
	}

	code, err = o.deps.Tester.RunTest(ctx, env)

	err = o.scriptOutcome(ctx, err)
	if err != nil {
		return err
	}

	if code == 0 {
		return &VerificationError{
			Partition: partitionBad, Stage: stageTest,
			Expected: tester.Bad, Got: tester.Good, ExitCode: code,
		}
	}

	return nil
}
