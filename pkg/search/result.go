package search

import "time"

// StopReason explains why a run ended.
type StopReason string

// Stop reasons.
const (
	// StopExhausted means the boundary was the last item, so nothing below it
	// can be bad.
	StopExhausted StopReason = "exhausted"
	// StopCycleDetected means a pass rediscovered an already found item.
	StopCycleDetected StopReason = "cycle_detected"
	// StopPruneDisabled means a single pass was requested.
	StopPruneDisabled StopReason = "prune_disabled"
	// StopPruneLimit means the configured number of passes was reached.
	StopPruneLimit StopReason = "prune_limit"
	// StopInconclusive means a pass hit its iteration budget before converging.
	StopInconclusive StopReason = "inconclusive"
	// StopInterrupted means the run was interrupted and its state persisted.
	StopInterrupted StopReason = "interrupted"
)

var stopDescriptions = map[StopReason]string{
	StopExhausted:     "search space exhausted",
	StopCycleDetected: "no new bad item found",
	StopPruneDisabled: "pruning disabled, first bad item found",
	StopPruneLimit:    "prune iteration limit reached",
	StopInconclusive:  "iteration limit reached before convergence",
	StopInterrupted:   "interrupted, state saved for resume",
}

// Description returns a human-readable explanation.
func (r StopReason) Description() string {
	if d, ok := stopDescriptions[r]; ok {
		return d
	}

	return string(r)
}

// Completed reports whether the run reached a final answer.
func (r StopReason) Completed() bool {
	return r != StopInterrupted && r != StopInconclusive
}

// Result summarizes a run.
type Result struct {
	RunID               string        `json:"run_id" yaml:"run_id"`
	FoundItems          []string      `json:"found_items" yaml:"found_items"`
	Reason              StopReason    `json:"reason" yaml:"reason"`
	Iterations          int           `json:"iterations" yaml:"iterations"`
	PruneCycles         int           `json:"prune_cycles" yaml:"prune_cycles"`
	MonotonicViolations int           `json:"monotonic_violations" yaml:"monotonic_violations"`
	Elapsed             time.Duration `json:"elapsed" yaml:"elapsed"`
	Resumed             bool          `json:"resumed" yaml:"resumed"`
}
