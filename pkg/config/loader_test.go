package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bisector/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".bisector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func runFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("get-initial-items", "", "")
	flags.String("test-script", "", "")
	flags.Int("iterations", config.DefaultIterations, "")
	flags.Bool("prune", false, "")
	flags.Bool("noincremental", false, "")
	flags.Bool("noverify", false, "")
	flags.Duration("script-timeout", 0, "")
	flags.String("format", config.DefaultOutputFormat, "")

	return flags
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""), nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultIterations, cfg.Search.Iterations)
	assert.Equal(t, config.DefaultPruneIterations, cfg.Search.PruneIterations)
	assert.False(t, cfg.Search.Prune)
	assert.True(t, cfg.Search.Incremental)
	assert.True(t, cfg.Search.Verify)
	assert.False(t, cfg.Search.CheckMonotonic)
	assert.Equal(t, config.DefaultStateFile, cfg.State.File)
	assert.Equal(t, "json", cfg.State.Codec)
	assert.Equal(t, config.DefaultGoodSetEnv, cfg.Env.GoodSetEnv)
	assert.Equal(t, config.DefaultBadSetEnv, cfg.Env.BadSetEnv)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Zero(t, cfg.Scripts.Timeout)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
items:
  get_initial_items: ./list.sh
scripts:
  switch_to_good: ./good.sh
  switch_to_bad: ./bad.sh
  test: ./test.sh
  timeout: 90s
search:
  iterations: 20
  prune: true
  incremental: false
state:
  file: /tmp/run.state
  codec: gob
  compress: true
output:
  format: yaml
`)

	cfg, err := config.LoadConfig(path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateRun())

	assert.Equal(t, "./list.sh", cfg.Items.Command)
	assert.Equal(t, "./good.sh", cfg.Scripts.SwitchToGood)
	assert.Equal(t, 90*time.Second, cfg.Scripts.Timeout)
	assert.Equal(t, 20, cfg.Search.Iterations)
	assert.True(t, cfg.Search.Prune)
	assert.False(t, cfg.Search.Incremental)
	assert.Equal(t, "/tmp/run.state", cfg.State.File)
	assert.Equal(t, "gob", cfg.State.Codec)
	assert.True(t, cfg.State.Compress)
	assert.Equal(t, "yaml", cfg.Output.Format)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "search:\n  iterations: 20\noutput:\n  format: yaml\n")

	flags := runFlags()
	require.NoError(t, flags.Parse([]string{
		"--iterations=7", "--noincremental", "--noverify", "--script-timeout=3s",
	}))

	cfg, err := config.LoadConfig(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Search.Iterations)
	assert.False(t, cfg.Search.Incremental)
	assert.False(t, cfg.Search.Verify)
	assert.Equal(t, 3*time.Second, cfg.Scripts.Timeout)
	// Unset flags leave file values alone.
	assert.Equal(t, "yaml", cfg.Output.Format)
}

func TestLoadConfig_UnsetFlagsKeepDefaults(t *testing.T) {
	t.Parallel()

	flags := runFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := config.LoadConfig(writeConfig(t, ""), flags)
	require.NoError(t, err)

	assert.True(t, cfg.Search.Incremental)
	assert.True(t, cfg.Search.Verify)
	assert.Equal(t, config.DefaultIterations, cfg.Search.Iterations)
}

func TestLoadConfig_EnvOverride_NestedKey(t *testing.T) {
	t.Setenv("BISECTOR_SEARCH_PRUNE_ITERATIONS", "4")
	t.Setenv("BISECTOR_ENV_GOOD_SET_ENV", "MY_GOOD")

	cfg, err := config.LoadConfig(writeConfig(t, ""), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Search.PruneIterations)
	assert.Equal(t, "MY_GOOD", cfg.Env.GoodSetEnv)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "search: [unterminated\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidValue_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "output:\n  format: xml\n"), nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadConfig_ExplicitPath_NotFound_ReturnsError(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("/nonexistent/path/config.yaml", nil)
	require.Error(t, err)
	assert.Nil(t, cfg)
}
