package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/bisector/pkg/partition"
	"github.com/Sumatoshi-tech/bisector/pkg/tester"
)

// prune records the boundary of a converged pass and prepares the next pass
// on the items from the boundary on. A non-empty reason ends the run.
func (o *Orchestrator) prune(ctx context.Context) (StopReason, error) {
	boundary := o.searcher.Current()
	item := o.set.Item(boundary)

	o.pruneCycles++

	o.deps.Logger.InfoContext(ctx, "bad item found", "item", item, "index", boundary, "pass", o.pruneCycles)

	if o.opts.CheckMonotonic {
		err := o.checkMonotonic(ctx, boundary)
		if err != nil {
			return "", err
		}
	}

	if boundary == len(o.items)-1 {
		o.found.Add(item)

		return StopExhausted, nil
	}

	if o.found.Has(item) {
		return StopCycleDetected, nil
	}

	o.found.Add(item)

	if !o.opts.Prune {
		return StopPruneDisabled, nil
	}

	if o.pruneCycles >= o.opts.PruneIterations {
		return StopPruneLimit, nil
	}

	for _, good := range o.items[:boundary] {
		o.knownGood.Add(good)
	}

	// The found item moves to the end so the next pass searches past it.
	next := make([]string, 0, len(o.items)-boundary)
	next = append(next, o.items[boundary+1:]...)
	next = append(next, item)
	o.items = next

	return "", o.startPass()
}

// checkMonotonic re-tests the splits on both sides of boundary. Mismatches are
// reported, not fatal: the boundary is kept. An interrupt skips the remaining
// re-tests.
func (o *Orchestrator) checkMonotonic(ctx context.Context, boundary int) error {
	bad, err := o.set.ComputePartition(boundary)
	if err != nil {
		return err
	}

	good := o.set.AllGood()
	if boundary > 0 {
		good, err = o.set.ComputePartition(boundary - 1)
		if err != nil {
			return err
		}
	}

	checks := []struct {
		split partition.Split
		want  tester.Verdict
	}{
		{bad, tester.Bad},
		{good, tester.Good},
	}

	for _, check := range checks {
		if o.interrupted.Load() {
			o.deps.Logger.InfoContext(ctx, "monotonicity check skipped on interrupt", "boundary", boundary)

			return nil
		}

		got, evalErr := o.evaluate(ctx, check.split)
		if errors.Is(evalErr, errInterrupted) {
			o.deps.Logger.InfoContext(ctx, "monotonicity check skipped on interrupt", "boundary", boundary)

			return nil
		}

		if evalErr != nil {
			return fmt.Errorf("monotonicity check: %w", evalErr)
		}

		if got != check.want {
			o.monotonicViolations++
			o.deps.Logger.WarnContext(ctx, "test verdict is not monotonic around boundary",
				"boundary", boundary,
				"bad_items", len(check.split.Bad),
				"expected", check.want,
				"got", got,
			)
		}
	}

	return nil
}
