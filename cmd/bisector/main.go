// Package main provides the entry point for the bisector CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bisector/cmd/bisector/commands"
	"github.com/Sumatoshi-tech/bisector/pkg/version"
)

// exitInterrupted is the conventional status of a process stopped by SIGINT.
const exitInterrupted = 130

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "bisector",
		Short: "Bisector - find the items that break your test",
		Long: `Bisector binary-searches an ordered set of items (commits, files,
compiler flags, ...) for the ones that turn a passing test into a failing one.

Commands:
  run       Start or resume a bisection
  state     Inspect or delete the saved run state
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(commands.ConfigFlag, "", "Config file (default: .bisector.yaml in CWD or $HOME)")

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewStateCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if errors.Is(err, commands.ErrInterrupted) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitInterrupted)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
