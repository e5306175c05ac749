package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricIterationsTotal   = "bisector.iterations.total"
	metricTestDuration      = "bisector.test.duration.seconds"
	metricSwitchInvocations = "bisector.switch.invocations.total"
	metricSwitchedItems     = "bisector.switch.items.total"
	metricRunsTotal         = "bisector.runs.total"
	metricFoundItems        = "bisector.found.items.total"
	metricRunDuration       = "bisector.run.duration.seconds"

	attrVerdict = "verdict"
	attrSide    = "side"
	attrReason  = "reason"
)

// durationBucketBoundaries covers 100ms to 2h: test scripts range from unit
// checks to full builds.
var durationBucketBoundaries = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200}

// SearchMetrics holds OTel instruments for bisection progress. Its method set
// satisfies the orchestrator's Observer.
type SearchMetrics struct {
	iterations   metric.Int64Counter
	testDuration metric.Float64Histogram
	invocations  metric.Int64Counter
	items        metric.Int64Counter
	runs         metric.Int64Counter
	found        metric.Int64Counter
	runDuration  metric.Float64Histogram
}

// NewSearchMetrics creates search metric instruments from the given meter.
func NewSearchMetrics(mt metric.Meter) (*SearchMetrics, error) {
	iterations, err := mt.Int64Counter(metricIterationsTotal,
		metric.WithDescription("Bisection iterations by verdict"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricIterationsTotal, err)
	}

	testDuration, err := mt.Float64Histogram(metricTestDuration,
		metric.WithDescription("Duration of one switch-and-test iteration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTestDuration, err)
	}

	invocations, err := mt.Int64Counter(metricSwitchInvocations,
		metric.WithDescription("Switch script invocations by side"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSwitchInvocations, err)
	}

	items, err := mt.Int64Counter(metricSwitchedItems,
		metric.WithDescription("Items passed to switch scripts by side"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSwitchedItems, err)
	}

	runs, err := mt.Int64Counter(metricRunsTotal,
		metric.WithDescription("Finished runs by stop reason"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunsTotal, err)
	}

	found, err := mt.Int64Counter(metricFoundItems,
		metric.WithDescription("Bad items reported by finished runs"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFoundItems, err)
	}

	runDuration, err := mt.Float64Histogram(metricRunDuration,
		metric.WithDescription("Total run duration in seconds, including resumed time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunDuration, err)
	}

	return &SearchMetrics{
		iterations:   iterations,
		testDuration: testDuration,
		invocations:  invocations,
		items:        items,
		runs:         runs,
		found:        found,
		runDuration:  runDuration,
	}, nil
}

// IterationDone records one verdict.
func (sm *SearchMetrics) IterationDone(ctx context.Context, verdict string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrVerdict, verdict))

	sm.iterations.Add(ctx, 1, attrs)
	sm.testDuration.Record(ctx, duration.Seconds(), attrs)
}

// Switched records switch script work for one side of a split.
func (sm *SearchMetrics) Switched(ctx context.Context, side string, invocations, items int) {
	attrs := metric.WithAttributes(attribute.String(attrSide, side))

	sm.invocations.Add(ctx, int64(invocations), attrs)
	sm.items.Add(ctx, int64(items), attrs)
}

// RunFinished records the end of a run.
func (sm *SearchMetrics) RunFinished(ctx context.Context, reason string, found int, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrReason, reason))

	sm.runs.Add(ctx, 1, attrs)
	sm.found.Add(ctx, int64(found))
	sm.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}
