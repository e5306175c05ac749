package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bisector/pkg/checkpoint"
	"github.com/Sumatoshi-tech/bisector/pkg/config"
	"github.com/Sumatoshi-tech/bisector/pkg/report"
)

// NewStateCommand creates the state command group.
func NewStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or delete the saved run state",
	}

	cmd.PersistentFlags().String("state-file", config.DefaultStateFile, "Location of the saved run state")
	cmd.PersistentFlags().String("state-codec", config.DefaultStateCodec, "State encoding: json or gob")
	cmd.PersistentFlags().Bool("state-compress", config.DefaultStateCompress, "State is compressed with LZ4")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print a summary of the saved run state",
		Args:  cobra.NoArgs,
		RunE:  runStateShow,
	}
	show.Flags().String("format", config.DefaultOutputFormat, "Output format: text, json, yaml")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved run state",
		Args:  cobra.NoArgs,
		RunE:  runStateClear,
	}

	cmd.AddCommand(show, clearCmd)

	return cmd
}

func runStateShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	manager, err := newCheckpointManager(cfg, slog.Default())
	if err != nil {
		return err
	}

	snap, err := manager.Peek()
	if errors.Is(err, checkpoint.ErrNoState) {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "No saved state at %s.\n", manager.Path())

		return err
	}

	if err != nil {
		return err
	}

	return report.WriteState(cmd.OutOrStdout(), cfg.Output.Format, manager.Path(), snap, time.Now())
}

func runStateClear(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	manager, err := newCheckpointManager(cfg, slog.Default())
	if err != nil {
		return err
	}

	if !manager.Exists() {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "No saved state at %s.\n", manager.Path())

		return err
	}

	err = manager.Remove()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed saved state at %s.\n", manager.Path())

	return err
}
