package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sumatoshi-tech/bisector/pkg/config"
	"github.com/Sumatoshi-tech/bisector/pkg/gitlib"
	"github.com/Sumatoshi-tech/bisector/pkg/itemset"
	"github.com/Sumatoshi-tech/bisector/pkg/process"
)

// Sentinel enumeration errors.
var (
	ErrEnumerationFailed = errors.New("get-initial-items script failed")
	ErrNoItems           = errors.New("item source produced no items")
)

// enumerateItems builds the ordered item universe from the configured source.
func enumerateItems(
	ctx context.Context,
	runner process.Runner,
	src config.ItemsConfig,
	logger *slog.Logger,
) ([]string, error) {
	var (
		items []string
		err   error
	)

	if src.GitRepo != "" {
		items, err = gitlib.ListRange(src.GitRepo, src.GitRange)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
	} else {
		items, err = scriptItems(ctx, runner, src.Command)
		if err != nil {
			return nil, err
		}
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}

	err = itemset.Unique(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	logger.Info("enumerated items", "count", len(items), "first", items[0], "last", items[len(items)-1])

	return items, nil
}

// scriptItems runs script and splits its standard output on whitespace.
func scriptItems(ctx context.Context, runner process.Runner, script string) ([]string, error) {
	cmd := process.Command{Script: script}

	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
	}

	if !res.Success() {
		return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, process.NewScriptError(cmd, res))
	}

	return strings.Fields(res.Stdout), nil
}
