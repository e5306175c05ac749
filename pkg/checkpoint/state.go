// Package checkpoint persists bisection progress so an interrupted run can
// resume from its last completed iteration.
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sumatoshi-tech/bisector/pkg/bisect"
	"github.com/Sumatoshi-tech/bisector/pkg/itemset"
)

// SnapshotVersion is the current snapshot format version. Records with a newer
// version are rejected.
const SnapshotVersion = 1

// Sentinel errors for snapshot validation.
var (
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
)

var snapshotValidate = validator.New()

// Snapshot is the full orchestration state. It holds plain data only; the
// orchestrator is rebuilt around it on resume.
type Snapshot struct {
	Version int    `json:"version" validate:"min=1"`
	RunID   string `json:"run_id" validate:"omitempty,uuid"`

	// AllItems is the universe of the current bisection pass.
	AllItems      []string `json:"all_items" validate:"required,min=1,unique"`
	KnownGood     []string `json:"known_good,omitempty" validate:"unique"`
	FoundItems    []string `json:"found_items,omitempty" validate:"unique"`
	CurrentlyGood []string `json:"currently_good,omitempty" validate:"unique"`
	CurrentlyBad  []string `json:"currently_bad,omitempty" validate:"unique"`

	Window bisect.Window `json:"window"`

	// SearchCycles counts iterations of the current pass.
	SearchCycles int `json:"search_cycles" validate:"min=0"`
	// PruneCycles counts completed passes.
	PruneCycles int `json:"prune_cycles" validate:"min=0"`
	// TotalIterations counts iterations across all passes.
	TotalIterations     int `json:"total_iterations" validate:"min=0,gtefield=SearchCycles"`
	MonotonicViolations int `json:"monotonic_violations,omitempty" validate:"min=0"`
	// Verified is set once the run is past verification, whether it passed
	// or was disabled. A resume verifies again only when it is false.
	Verified bool `json:"verified"`

	// StartedAt is the elapsed-time origin of the current process.
	StartedAt time.Time `json:"started_at"`
	// PriorElapsed is time spent by earlier, interrupted processes.
	PriorElapsed time.Duration `json:"prior_elapsed"`
	SavedAt      time.Time     `json:"saved_at"`
}

// Elapsed returns total run time up to now.
func (s *Snapshot) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return s.PriorElapsed
	}

	return s.PriorElapsed + now.Sub(s.StartedAt)
}

// Validate checks field constraints and the invariants between fields.
func (s *Snapshot) Validate() error {
	if s.Version > SnapshotVersion {
		return fmt.Errorf("%w: %d (newest known %d)", ErrUnsupportedVersion, s.Version, SnapshotVersion)
	}

	err := snapshotValidate.Struct(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	if s.Window.High >= len(s.AllItems) {
		return fmt.Errorf("%w: window %d..%d outside %d items",
			ErrInvalidSnapshot, s.Window.Low, s.Window.High, len(s.AllItems))
	}

	if itemset.New(s.CurrentlyGood...).Intersects(itemset.New(s.CurrentlyBad...)) {
		return fmt.Errorf("%w: item tracked as both good and bad", ErrInvalidSnapshot)
	}

	if itemset.New(s.AllItems...).Intersects(itemset.New(s.KnownGood...)) {
		return fmt.Errorf("%w: known-good item still under search", ErrInvalidSnapshot)
	}

	return nil
}

// prepareResume clears the environment tracking and starts a new elapsed-time
// origin. Counters are kept so iteration budgets carry over.
func (s *Snapshot) prepareResume(now time.Time) {
	if !s.SavedAt.IsZero() && !s.StartedAt.IsZero() {
		s.PriorElapsed += s.SavedAt.Sub(s.StartedAt)
	}

	s.StartedAt = now
	s.CurrentlyGood = nil
	s.CurrentlyBad = nil
}
