// Package search drives a bisection run: optional verification, repeated
// binary search passes, pruning of found items and checkpointing.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/bisector/pkg/bisect"
	"github.com/Sumatoshi-tech/bisector/pkg/checkpoint"
	"github.com/Sumatoshi-tech/bisector/pkg/itemset"
	"github.com/Sumatoshi-tech/bisector/pkg/partition"
	"github.com/Sumatoshi-tech/bisector/pkg/switcher"
	"github.com/Sumatoshi-tech/bisector/pkg/tester"
)

// Default budgets.
const (
	DefaultIterations      = 50
	DefaultPruneIterations = 100
)

const tracerName = "bisector/search"

// State is the orchestrator's position in its state machine.
type State string

// States.
const (
	StateIdle      State = "idle"
	StateVerifying State = "verifying"
	StateSearching State = "searching"
	StatePruning   State = "pruning"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// Options controls the search policy.
type Options struct {
	// Iterations bounds the verdicts collected in one pass.
	Iterations int
	// PruneIterations bounds the number of passes.
	PruneIterations int
	// Prune continues searching the remainder after a bad item is found.
	Prune bool
	// Verify runs the all-good and all-bad sanity checks first.
	Verify bool
	// CheckMonotonic re-tests both sides of every found boundary.
	CheckMonotonic bool
}

// Observer receives progress events, typically for metrics.
type Observer interface {
	IterationDone(ctx context.Context, verdict string, duration time.Duration)
	Switched(ctx context.Context, side string, invocations, items int)
	RunFinished(ctx context.Context, reason string, found int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) IterationDone(context.Context, string, time.Duration) {}
func (nopObserver) Switched(context.Context, string, int, int) {}
func (nopObserver) RunFinished(context.Context, string, int, time.Duration) {}

// Deps holds the live collaborators of an Orchestrator. Switcher and Tester
// are required.
type Deps struct {
	Switcher *switcher.Switcher
	Tester   *tester.Invoker
	// Channels publishes the split to scripts. Defaults to the system temp dir.
	Channels *switcher.Channels
	// Checkpoints persists progress. Nil disables checkpointing.
	Checkpoints *checkpoint.Manager
	Observer    Observer
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Now         func() time.Time
}

func (d *Deps) complete() error {
	if d.Switcher == nil || d.Tester == nil {
		return fmt.Errorf("%w: switcher and tester are required", ErrMissingDependency)
	}

	if d.Channels == nil {
		d.Channels = switcher.NewChannels(os.TempDir())
	}

	if d.Observer == nil {
		d.Observer = nopObserver{}
	}

	if d.Tracer == nil {
		d.Tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}

	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	if d.Now == nil {
		d.Now = time.Now
	}

	return nil
}

// Orchestrator runs one bisection. It is single-threaded; only Interrupt may
// be called from another goroutine.
type Orchestrator struct {
	opts  Options
	deps  Deps
	state State

	items     []string
	knownGood *itemset.Ordered
	found     *itemset.Ordered
	set       *partition.Set
	searcher  *bisect.Searcher

	runID               string
	searchCycles        int
	pruneCycles         int
	totalIterations     int
	monotonicViolations int
	verified            bool
	resumed             bool
	startedAt           time.Time
	priorElapsed        time.Duration

	interrupted atomic.Bool
}

// New creates an orchestrator for a fresh run over items.
func New(items []string, opts Options, deps Deps) (*Orchestrator, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	err := itemset.Unique(items)
	if err != nil {
		return nil, fmt.Errorf("item universe: %w", err)
	}

	o, err := newOrchestrator(opts, deps)
	if err != nil {
		return nil, err
	}

	o.items = append([]string(nil), items...)
	o.runID = uuid.NewString()
	o.startedAt = o.deps.Now()

	err = o.startPass()
	if err != nil {
		return nil, err
	}

	return o, nil
}

// Resume rebuilds an orchestrator around a saved snapshot. Verification is
// skipped unless the saved run was interrupted while verifying. The next split
// is applied against the snapshot's tracking sets, which
// checkpoint.Manager.Load clears.
func Resume(snap *checkpoint.Snapshot, opts Options, deps Deps) (*Orchestrator, error) {
	o, err := newOrchestrator(opts, deps)
	if err != nil {
		return nil, err
	}

	o.items = append([]string(nil), snap.AllItems...)
	o.knownGood = itemset.New(snap.KnownGood...)
	o.found = itemset.New(snap.FoundItems...)
	o.runID = snap.RunID
	o.pruneCycles = snap.PruneCycles
	o.totalIterations = snap.TotalIterations
	o.monotonicViolations = snap.MonotonicViolations
	o.verified = snap.Verified
	o.resumed = true
	o.startedAt = snap.StartedAt
	o.priorElapsed = snap.PriorElapsed

	if o.startedAt.IsZero() {
		o.startedAt = o.deps.Now()
	}

	err = o.startPass()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotResume, err)
	}

	o.searchCycles = snap.SearchCycles
	o.set.RestoreTracking(snap.CurrentlyGood, snap.CurrentlyBad)

	err = o.searcher.Restore(snap.Window)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotResume, err)
	}

	return o, nil
}

// FromCheckpoint loads the saved state from deps.Checkpoints and resumes it.
func FromCheckpoint(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("%w: %w: no state location", ErrCannotResume, ErrMissingDependency)
	}

	snap, err := deps.Checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotResume, err)
	}

	return Resume(snap, opts, deps)
}

func newOrchestrator(opts Options, deps Deps) (*Orchestrator, error) {
	err := deps.complete()
	if err != nil {
		return nil, err
	}

	if opts.Iterations <= 0 {
		opts.Iterations = DefaultIterations
	}

	if opts.PruneIterations <= 0 {
		opts.PruneIterations = DefaultPruneIterations
	}

	return &Orchestrator{
		opts:      opts,
		deps:      deps,
		state:     StateIdle,
		knownGood: itemset.New(),
		found:     itemset.New(),
	}, nil
}

// Interrupt asks the run to stop after the current iteration. The state is
// persisted and Run returns StopInterrupted. Safe for concurrent use.
func (o *Orchestrator) Interrupt() {
	o.interrupted.Store(true)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// RunID identifies the run across resumes.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the search until it completes, is interrupted or fails. On
// failure the persisted state is kept so the run can be resumed.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	ctx, span := o.deps.Tracer.Start(ctx, "bisector.search", trace.WithAttributes(
		attribute.String("bisector.run_id", o.runID),
		attribute.Int("bisector.items", len(o.items)+o.knownGood.Len()),
		attribute.Bool("bisector.resumed", o.resumed),
	))
	defer span.End()

	if o.resumed {
		o.deps.Logger.InfoContext(ctx, "resuming search",
			"run_id", o.runID, "pass", o.pruneCycles+1, "iterations", o.totalIterations)
	}

	if o.opts.Verify && !o.verified {
		o.state = StateVerifying

		err := o.verify(ctx)
		if errors.Is(err, errInterrupted) {
			return o.saveAndInterrupt(ctx, span)
		}

		if err != nil {
			return o.abort(ctx, span, err)
		}
	}

	// Past this point a resumed run never verifies again.
	o.verified = true

	for {
		o.state = StateSearching

		reason, err := o.searchPass(ctx)
		if err != nil {
			return o.abort(ctx, span, err)
		}

		if reason == StopInterrupted {
			return o.interrupt(ctx, span), nil
		}

		if reason != "" {
			return o.finish(ctx, span, reason), nil
		}

		o.state = StatePruning

		reason, err = o.prune(ctx)
		if err != nil {
			return o.abort(ctx, span, err)
		}

		if reason != "" {
			return o.finish(ctx, span, reason), nil
		}
	}
}

// searchPass iterates the current pass until it converges. A non-empty reason
// ends the run.
func (o *Orchestrator) searchPass(ctx context.Context) (StopReason, error) {
	for !o.searcher.Done() {
		if o.interrupted.Load() {
			return StopInterrupted, o.save()
		}

		if o.searchCycles >= o.opts.Iterations {
			o.deps.Logger.WarnContext(ctx, "pass did not converge",
				"iterations", o.searchCycles, "window", o.searcher.Window())

			return StopInconclusive, nil
		}

		err := o.save()
		if err != nil {
			return "", err
		}

		err = o.iterate(ctx)
		if errors.Is(err, errInterrupted) {
			// The snapshot taken before this iteration stands.
			return StopInterrupted, nil
		}

		if err != nil {
			return "", err
		}
	}

	return "", nil
}

// iterate tests the split at the searcher's proposed boundary.
func (o *Orchestrator) iterate(ctx context.Context) error {
	window := o.searcher.Window()
	boundary := o.searcher.Current()
	item := o.searcher.GetNext()

	ctx, span := o.deps.Tracer.Start(ctx, "bisector.iteration", trace.WithAttributes(
		attribute.Int("bisector.pass", o.pruneCycles+1),
		attribute.Int("bisector.boundary", boundary),
	))
	defer span.End()

	start := o.deps.Now()

	split, err := o.set.ComputePartition(boundary)
	if err != nil {
		return err
	}

	verdict, err := o.evaluate(ctx, split)
	if errors.Is(err, errInterrupted) {
		o.deps.Logger.InfoContext(ctx, "test killed during interrupt, verdict discarded", "item", item)

		return err
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	duration := o.deps.Now().Sub(start)

	o.searchCycles++
	o.totalIterations++
	o.searcher.SetStatus(verdict.Bad())

	span.SetAttributes(attribute.String("bisector.verdict", verdict.String()))
	o.deps.Observer.IterationDone(ctx, verdict.String(), duration)

	o.deps.Logger.InfoContext(ctx, "iteration complete",
		"pass", o.pruneCycles+1,
		"iteration", o.searchCycles,
		"low", window.Low,
		"high", window.High,
		"item", item,
		"verdict", verdict,
	)

	return nil
}

// evaluate applies split and collects the verdict.
func (o *Orchestrator) evaluate(ctx context.Context, split partition.Split) (tester.Verdict, error) {
	verdict := tester.Bad

	err := o.withSplit(ctx, split, func(env []string) error {
		var runErr error

		verdict, runErr = o.deps.Tester.Verdict(ctx, env)

		return o.scriptOutcome(ctx, runErr)
	})

	return verdict, err
}

// scriptOutcome decides what a test script killed by a signal means. While
// the run is being interrupted the signal was most likely meant for bisector,
// so the outcome is discarded with errInterrupted. Otherwise the script
// crashed and its bad verdict or non-zero status stands.
func (o *Orchestrator) scriptOutcome(ctx context.Context, err error) error {
	if !errors.Is(err, tester.ErrTerminated) {
		return err
	}

	if o.interrupted.Load() {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}

	o.deps.Logger.WarnContext(ctx, "script terminated by a signal, counting as failure", "error", err)

	return nil
}

// withSplit publishes split to the environment channels, applies it and
// calls fn while the channel files exist.
func (o *Orchestrator) withSplit(ctx context.Context, split partition.Split, fn func(env []string) error) error {
	env, release, err := o.deps.Channels.Publish(split)
	if err != nil {
		return err
	}

	defer func() {
		releaseErr := release()
		if releaseErr != nil {
			o.deps.Logger.WarnContext(ctx, "failed to remove set files", "error", releaseErr)
		}
	}()

	stats, err := o.deps.Switcher.Apply(ctx, o.set, split, env)
	for side, n := range stats.Invocations {
		o.deps.Observer.Switched(ctx, string(side), n, stats.Items[side])
	}

	if err != nil {
		return err
	}

	return fn(env)
}

// startPass creates the partition set and searcher for the current items.
// Tracking carries over from the previous pass because the universe is the
// same; only the order changes.
func (o *Orchestrator) startPass() error {
	set, err := partition.New(o.items, o.knownGood.Items())
	if err != nil {
		return err
	}

	searcher, err := bisect.New(o.items)
	if err != nil {
		return err
	}

	if o.set != nil {
		set.RestoreTracking(o.set.CurrentlyGood(), o.set.CurrentlyBad())
	}

	o.set = set
	o.searcher = searcher
	o.searchCycles = 0

	return nil
}

func (o *Orchestrator) snapshot() *checkpoint.Snapshot {
	return &checkpoint.Snapshot{
		RunID:               o.runID,
		AllItems:            append([]string(nil), o.items...),
		KnownGood:           o.knownGood.Items(),
		FoundItems:          o.found.Items(),
		CurrentlyGood:       o.set.CurrentlyGood(),
		CurrentlyBad:        o.set.CurrentlyBad(),
		Window:              o.searcher.Window(),
		SearchCycles:        o.searchCycles,
		PruneCycles:         o.pruneCycles,
		TotalIterations:     o.totalIterations,
		MonotonicViolations: o.monotonicViolations,
		Verified:            o.verified,
		StartedAt:           o.startedAt,
		PriorElapsed:        o.priorElapsed,
	}
}

func (o *Orchestrator) save() error {
	if o.deps.Checkpoints == nil {
		return nil
	}

	err := o.deps.Checkpoints.Save(o.snapshot())
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	return nil
}

func (o *Orchestrator) elapsed() time.Duration {
	return o.priorElapsed + o.deps.Now().Sub(o.startedAt)
}

func (o *Orchestrator) result(reason StopReason) Result {
	return Result{
		RunID:               o.runID,
		FoundItems:          o.found.Items(),
		Reason:              reason,
		Iterations:          o.totalIterations,
		PruneCycles:         o.pruneCycles,
		MonotonicViolations: o.monotonicViolations,
		Elapsed:             o.elapsed(),
		Resumed:             o.resumed,
	}
}

// finish ends a run that needs no resume and removes the persisted state.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, reason StopReason) Result {
	o.state = StateDone
	res := o.result(reason)

	if o.deps.Checkpoints != nil {
		err := o.deps.Checkpoints.Remove()
		if err != nil {
			o.deps.Logger.WarnContext(ctx, "failed to remove saved state", "error", err)
		}
	}

	span.SetAttributes(
		attribute.String("bisector.reason", string(reason)),
		attribute.Int("bisector.found", len(res.FoundItems)),
	)
	o.deps.Observer.RunFinished(ctx, string(reason), len(res.FoundItems), res.Elapsed)
	o.deps.Logger.InfoContext(ctx, "search finished",
		"reason", reason.Description(),
		"found", res.FoundItems,
		"iterations", res.Iterations,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)

	return res
}

// interrupt ends a run whose state was just persisted for resume.
func (o *Orchestrator) interrupt(ctx context.Context, span trace.Span) Result {
	res := o.result(StopInterrupted)

	span.SetAttributes(attribute.String("bisector.reason", string(StopInterrupted)))
	o.deps.Observer.RunFinished(ctx, string(StopInterrupted), len(res.FoundItems), res.Elapsed)
	o.deps.Logger.InfoContext(ctx, "search interrupted", "iterations", res.Iterations, "found", res.FoundItems)

	return res
}

// saveAndInterrupt persists the current state and ends the run for resume.
func (o *Orchestrator) saveAndInterrupt(ctx context.Context, span trace.Span) (Result, error) {
	err := o.save()
	if err != nil {
		return o.abort(ctx, span, err)
	}

	return o.interrupt(ctx, span), nil
}

// abort ends a failed run. The persisted state is kept.
func (o *Orchestrator) abort(ctx context.Context, span trace.Span, err error) (Result, error) {
	o.state = StateAborted

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.deps.Logger.ErrorContext(ctx, "search aborted", "error", err)

	return o.result(""), err
}
