// Package switcher applies a good/bad split to the external environment by
// invoking the caller's switch scripts.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/bisector/pkg/partition"
	"github.com/Sumatoshi-tech/bisector/pkg/process"
)

// ErrSwitchFailed wraps every switch script failure. The environment is in an
// unknown state afterwards, so callers must not retry.
var ErrSwitchFailed = errors.New("switch script failed")

// Side names the half of a split a script switches to.
type Side string

// Sides of a split.
const (
	SideGood Side = "good"
	SideBad  Side = "bad"
)

// Options configures a Switcher.
type Options struct {
	GoodScript string
	BadScript  string
	// Incremental passes only items whose membership changed.
	Incremental bool
	// FileArgs passes a file listing the items instead of the items themselves.
	FileArgs bool
	// TempDir holds argument files. Empty uses the system temp directory.
	TempDir string
}

// Stats describes the work done by one Apply call.
type Stats struct {
	Invocations map[Side]int
	Items       map[Side]int
}

// Switcher drives the switch scripts and keeps the partition's tracking sets
// in step with what the environment was told.
type Switcher struct {
	runner process.Runner
	opts   Options
	logger *slog.Logger
}

// New creates a Switcher.
func New(runner process.Runner, opts Options, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Switcher{runner: runner, opts: opts, logger: logger}
}

// Incremental reports whether only deltas are switched.
func (s *Switcher) Incremental() bool {
	return s.opts.Incremental
}

// Apply switches the environment to split. The good side is applied first.
// On success set's tracking sets equal split.
func (s *Switcher) Apply(ctx context.Context, set *partition.Set, split partition.Split, env []string) (Stats, error) {
	stats := Stats{Invocations: map[Side]int{}, Items: map[Side]int{}}

	target := split
	if s.opts.Incremental {
		target = set.Delta(split)
	}

	if len(target.Good) > 0 || !s.opts.Incremental {
		err := s.invoke(ctx, SideGood, s.opts.GoodScript, target.Good, env)
		if err != nil {
			return stats, err
		}

		stats.Invocations[SideGood]++
		stats.Items[SideGood] += len(target.Good)

		set.CommitGood(target.Good)
	}

	if len(target.Bad) > 0 || !s.opts.Incremental {
		err := s.invoke(ctx, SideBad, s.opts.BadScript, target.Bad, env)
		if err != nil {
			return stats, err
		}

		stats.Invocations[SideBad]++
		stats.Items[SideBad] += len(target.Bad)
	}

	set.Commit(split)

	return stats, nil
}

func (s *Switcher) invoke(ctx context.Context, side Side, script string, items, env []string) error {
	args := items

	if s.opts.FileArgs {
		path, err := writeList(s.opts.TempDir, "switch-"+string(side)+"-*.txt", items)
		if err != nil {
			return fmt.Errorf("switch to %s: %w", side, err)
		}

		defer func() {
			if rmErr := os.Remove(path); rmErr != nil {
				s.logger.Warn("failed to remove argument file", "path", path, "error", rmErr)
			}
		}()

		args = []string{path}
	}

	cmd := process.Command{Script: script, Args: args, Env: env}

	s.logger.Debug("switching items", "side", side, "items", len(items), "file_args", s.opts.FileArgs)

	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%w: switch to %s: %w", ErrSwitchFailed, side, err)
	}

	if !res.Success() {
		return fmt.Errorf("%w: switch to %s: %w", ErrSwitchFailed, side, process.NewScriptError(cmd, res))
	}

	return nil
}
