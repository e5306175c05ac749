// Package commands implements CLI command handlers for bisector.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bisector/pkg/checkpoint"
	"github.com/Sumatoshi-tech/bisector/pkg/config"
	"github.com/Sumatoshi-tech/bisector/pkg/observability"
	"github.com/Sumatoshi-tech/bisector/pkg/persist"
	"github.com/Sumatoshi-tech/bisector/pkg/process"
	"github.com/Sumatoshi-tech/bisector/pkg/report"
	"github.com/Sumatoshi-tech/bisector/pkg/search"
	"github.com/Sumatoshi-tech/bisector/pkg/switcher"
	"github.com/Sumatoshi-tech/bisector/pkg/tester"
)

// ErrInterrupted is returned when a run stopped on a signal after saving its
// state. main maps it to exit status 130.
var ErrInterrupted = errors.New("interrupted")

// ConfigFlag is the persistent flag naming an explicit config file.
const ConfigFlag = "config"

// signalNotifier registers c for interrupt signals and returns a function
// that unregisters it.
type signalNotifier func(c chan<- os.Signal) (stop func())

func notifyInterrupt(c chan<- os.Signal) func() {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	return func() { signal.Stop(c) }
}

// RunCommand holds dependencies for the run command.
type RunCommand struct {
	notify signalNotifier
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(notifyInterrupt)
}

func newRunCommandWithDeps(notify signalNotifier) *cobra.Command {
	rc := &RunCommand{notify: notify}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bisect a set of items to find the ones that break a test",
		Long: `Run a bisection over an ordered set of items.

The switch scripts move items between their good and bad variants, the test
script exits 0 when the environment is good. The current good and bad sets are
also exposed to every script through two files named by environment variables.
Progress is saved after every iteration; rerun with --resume after an
interruption.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	flags := cmd.Flags()

	flags.String("get-initial-items", "", "Script printing the ordered items, whitespace separated")
	flags.String("git-repo", "", "Repository whose commits are the items (with --git-range)")
	flags.String("git-range", "", "Commit range GOOD..BAD to bisect in --git-repo")
	flags.String("switch-to-good", "", "Script switching the given items to their good variant")
	flags.String("switch-to-bad", "", "Script switching the given items to their bad variant")
	flags.String("test-setup-script", "", "Script run before every test; non-zero exit means bad")
	flags.String("test-script", "", "Script that exits 0 when the environment is good")
	flags.Duration("script-timeout", 0, "Maximum run time of a single script (0 = no limit)")
	flags.Int("iterations", config.DefaultIterations, "Maximum iterations per bisection pass")
	flags.Int("prune-iterations", config.DefaultPruneIterations, "Maximum bisection passes when pruning")
	flags.Bool("prune", config.DefaultPrune, "Keep searching for further bad items after the first")
	flags.Bool("noincremental", false, "Switch every item on every iteration instead of only the changed ones")
	flags.Bool("file-args", config.DefaultFileArgs, "Pass items to switch scripts in a file instead of as arguments")
	flags.Bool("verify", config.DefaultVerify, "Check that all-good tests good and all-bad tests bad before searching")
	flags.Bool("noverify", false, "Skip the initial verification")
	flags.Bool("check-monotonic", config.DefaultCheckMonotonic, "Re-test both sides of every found boundary")
	flags.Bool("resume", false, "Resume the run saved in --state-file")
	flags.String("state-file", config.DefaultStateFile, "Location of the saved run state")
	flags.String("state-codec", config.DefaultStateCodec, "State encoding: json or gob")
	flags.Bool("state-compress", config.DefaultStateCompress, "Compress the saved state with LZ4")
	flags.String("good-set-env", config.DefaultGoodSetEnv, "Variable naming the file that lists the good set")
	flags.String("bad-set-env", config.DefaultBadSetEnv, "Variable naming the file that lists the bad set")
	flags.String("format", config.DefaultOutputFormat, "Output format: text, json, yaml")
	flags.BoolP("verbose", "v", false, "Echo script output and log at debug level")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.Bool("log-json", config.DefaultLogJSON, "Write logs as JSON")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.String("otlp-endpoint", "", "OTLP gRPC collector for traces and metrics")

	cmd.MarkFlagsMutuallyExclusive("get-initial-items", "git-repo")
	cmd.MarkFlagsMutuallyExclusive("verify", "noverify")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	err = cfg.ValidateRun()
	if err != nil {
		return err
	}

	providers, err := initObservability(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	logger := providers.Logger

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	stopMetrics, err := serveMetrics(cfg, providers)
	if err != nil {
		return err
	}
	defer stopMetrics()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	orch, cleanup, err := rc.buildOrchestrator(ctx, cfg, providers, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	signals := make(chan os.Signal, 1)
	stopNotify := rc.notify(signals)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-signals:
			logger.Warn("interrupt received, stopping after the current iteration", "signal", sig.String())
			orch.Interrupt()
		case <-done:
		}
	}()

	res, runErr := orch.Run(ctx)

	close(done)
	stopNotify()

	if runErr != nil {
		return runErr
	}

	err = report.WriteResult(cmd.OutOrStdout(), cfg.Output.Format, res)
	if err != nil {
		return err
	}

	if res.Reason == search.StopInterrupted {
		return fmt.Errorf("%w: state saved to %s, rerun with --resume", ErrInterrupted, cfg.State.File)
	}

	return nil
}

// buildOrchestrator wires scripts, state and telemetry into a fresh or
// resumed orchestrator. cleanup removes the scratch directory.
func (rc *RunCommand) buildOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	providers observability.Providers,
	stderr io.Writer,
) (*search.Orchestrator, func(), error) {
	logger := providers.Logger

	err := lookupScripts(cfg)
	if err != nil {
		return nil, nil, err
	}

	runner := process.NewExecRunner(logger)
	runner.Timeout = cfg.Scripts.Timeout

	if cfg.Logging.Verbose {
		runner.Echo = stderr
	}

	workDir, err := os.MkdirTemp("", "bisector-")
	if err != nil {
		return nil, nil, fmt.Errorf("create work directory: %w", err)
	}

	cleanup := func() {
		rmErr := os.RemoveAll(workDir)
		if rmErr != nil {
			logger.Warn("failed to remove work directory", "path", workDir, "error", rmErr)
		}
	}

	orch, err := rc.newOrchestrator(ctx, cfg, providers, runner, workDir)
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	return orch, cleanup, nil
}

func (rc *RunCommand) newOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	providers observability.Providers,
	runner process.Runner,
	workDir string,
) (*search.Orchestrator, error) {
	logger := providers.Logger

	invoker, err := tester.New(runner, cfg.Scripts.TestSetup, cfg.Scripts.Test, logger)
	if err != nil {
		return nil, err
	}

	sw := switcher.New(runner, switcher.Options{
		GoodScript:  cfg.Scripts.SwitchToGood,
		BadScript:   cfg.Scripts.SwitchToBad,
		Incremental: cfg.Search.Incremental,
		FileArgs:    cfg.Search.FileArgs,
		TempDir:     workDir,
	}, logger)

	channels := switcher.NewChannels(workDir)
	channels.GoodVar = cfg.Env.GoodSetEnv
	channels.BadVar = cfg.Env.BadSetEnv

	checkpoints, err := newCheckpointManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	observer, err := observability.NewSearchMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	deps := search.Deps{
		Switcher:    sw,
		Tester:      invoker,
		Channels:    channels,
		Checkpoints: checkpoints,
		Observer:    observer,
		Tracer:      providers.Tracer,
		Logger:      logger,
	}

	opts := search.Options{
		Iterations:      cfg.Search.Iterations,
		PruneIterations: cfg.Search.PruneIterations,
		Prune:           cfg.Search.Prune,
		Verify:          cfg.Search.Verify,
		CheckMonotonic:  cfg.Search.CheckMonotonic,
	}

	if cfg.Search.Resume {
		return search.FromCheckpoint(opts, deps)
	}

	if checkpoints.Exists() {
		logger.Warn("discarding saved state of an earlier run, pass --resume to continue it",
			"state_file", checkpoints.Path())
	}

	items, err := enumerateItems(ctx, runner, cfg.Items, logger)
	if err != nil {
		return nil, err
	}

	return search.New(items, opts, deps)
}

func newCheckpointManager(cfg *config.Config, logger *slog.Logger) (*checkpoint.Manager, error) {
	codec, err := persist.ForName(cfg.State.Codec, cfg.State.Compress)
	if err != nil {
		return nil, err
	}

	return checkpoint.NewManager(cfg.State.File, codec, logger), nil
}

func lookupScripts(cfg *config.Config) error {
	scripts := []string{cfg.Scripts.SwitchToGood, cfg.Scripts.SwitchToBad, cfg.Scripts.Test}

	if cfg.Scripts.TestSetup != "" {
		scripts = append(scripts, cfg.Scripts.TestSetup)
	}

	if cfg.Items.Command != "" && !cfg.Search.Resume {
		scripts = append(scripts, cfg.Items.Command)
	}

	for _, script := range scripts {
		err := process.Lookup(script)
		if err != nil {
			return err
		}
	}

	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString(ConfigFlag)
	if err != nil {
		configPath = ""
	}

	return config.LoadConfig(configPath, cmd.Flags())
}
