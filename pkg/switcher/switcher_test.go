package switcher_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bisector/pkg/partition"
	"github.com/Sumatoshi-tech/bisector/pkg/process"
	"github.com/Sumatoshi-tech/bisector/pkg/switcher"
)

const (
	goodScript = "switch_good"
	badScript  = "switch_bad"
)

// recordingRunner captures commands and answers with a fixed exit code per script.
type recordingRunner struct {
	calls []process.Command
	exit  map[string]int
	// files snapshots the content of file arguments while the call runs.
	files []string
}

func (r *recordingRunner) Run(_ context.Context, cmd process.Command) (process.Result, error) {
	r.calls = append(r.calls, cmd)

	if len(cmd.Args) == 1 {
		if data, err := os.ReadFile(cmd.Args[0]); err == nil {
			r.files = append(r.files, string(data))
		}
	}

	return process.Result{ExitCode: r.exit[cmd.Script]}, nil
}

func (r *recordingRunner) scripts() []string {
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Script)
	}

	return out
}

func newSet(t *testing.T) *partition.Set {
	t.Helper()

	set, err := partition.New([]string{"a", "b", "c", "d", "e"}, nil)
	require.NoError(t, err)

	return set
}

func TestApply_IncrementalSwitchesOnlyDelta(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	sw := switcher.New(runner, switcher.Options{GoodScript: goodScript, BadScript: badScript, Incremental: true}, nil)
	set := newSet(t)

	first, err := set.ComputePartition(2)
	require.NoError(t, err)

	stats, err := sw.Apply(context.Background(), set, first, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{goodScript, badScript}, runner.scripts())
	assert.Equal(t, []string{"d", "e"}, runner.calls[0].Args)
	assert.Equal(t, []string{"a", "b", "c"}, runner.calls[1].Args)
	assert.Equal(t, 1, stats.Invocations[switcher.SideGood])
	assert.Equal(t, 3, stats.Items[switcher.SideBad])

	second, err := set.ComputePartition(1)
	require.NoError(t, err)

	_, err = sw.Apply(context.Background(), set, second, nil)
	require.NoError(t, err)

	require.Len(t, runner.calls, 3)
	assert.Equal(t, goodScript, runner.calls[2].Script)
	assert.Equal(t, []string{"c"}, runner.calls[2].Args)
}

func TestApply_SamePartitionTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	sw := switcher.New(runner, switcher.Options{GoodScript: goodScript, BadScript: badScript, Incremental: true}, nil)
	set := newSet(t)

	split, err := set.ComputePartition(3)
	require.NoError(t, err)

	_, err = sw.Apply(context.Background(), set, split, nil)
	require.NoError(t, err)

	before := len(runner.calls)

	stats, err := sw.Apply(context.Background(), set, split, nil)
	require.NoError(t, err)

	assert.Len(t, runner.calls, before)
	assert.Zero(t, stats.Invocations[switcher.SideGood]+stats.Invocations[switcher.SideBad])
}

func TestApply_NonIncrementalAlwaysInvokesBoth(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	sw := switcher.New(runner, switcher.Options{GoodScript: goodScript, BadScript: badScript}, nil)
	set := newSet(t)

	split, err := set.ComputePartition(4)
	require.NoError(t, err)

	for range 2 {
		_, err = sw.Apply(context.Background(), set, split, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{goodScript, badScript, goodScript, badScript}, runner.scripts())
	assert.Empty(t, runner.calls[2].Args)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, runner.calls[3].Args)
}

func TestApply_PartitionInvariant(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	sw := switcher.New(runner, switcher.Options{GoodScript: goodScript, BadScript: badScript, Incremental: true}, nil)

	set, err := partition.New([]string{"c", "d", "e"}, []string{"a", "b"})
	require.NoError(t, err)

	for _, boundary := range []int{1, 0, 2, 1} {
		split, splitErr := set.ComputePartition(boundary)
		require.NoError(t, splitErr)

		_, applyErr := sw.Apply(context.Background(), set, split, nil)
		require.NoError(t, applyErr)

		assert.True(t, set.Disjoint())

		union := append(set.CurrentlyGood(), set.CurrentlyBad()...)
		assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, union)
	}
}

func TestApply_FailureIsFatal(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{exit: map[string]int{badScript: 2}}
	sw := switcher.New(runner, switcher.Options{GoodScript: goodScript, BadScript: badScript, Incremental: true}, nil)
	set := newSet(t)

	split, err := set.ComputePartition(1)
	require.NoError(t, err)

	_, err = sw.Apply(context.Background(), set, split, nil)
	require.ErrorIs(t, err, switcher.ErrSwitchFailed)

	var scriptErr *process.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, 2, scriptErr.ExitCode)
	assert.True(t, strings.HasPrefix(scriptErr.Command, badScript))

	// Only the good half reached the environment.
	assert.Empty(t, set.CurrentlyBad())
	assert.Equal(t, []string{"c", "d", "e"}, set.CurrentlyGood())
}

func TestApply_FileArgs(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	dir := t.TempDir()
	sw := switcher.New(runner, switcher.Options{
		GoodScript:  goodScript,
		BadScript:   badScript,
		Incremental: true,
		FileArgs:    true,
		TempDir:     dir,
	}, nil)
	set := newSet(t)

	split, err := set.ComputePartition(0)
	require.NoError(t, err)

	_, err = sw.Apply(context.Background(), set, split, []string{"X=1"})
	require.NoError(t, err)

	require.Len(t, runner.files, 2)
	assert.Equal(t, "b\nc\nd\ne\n", runner.files[0])
	assert.Equal(t, "a\n", runner.files[1])
	assert.Equal(t, []string{"X=1"}, runner.calls[0].Env)

	// Argument files are removed after each invocation.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApply_RealScripts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	script := func(name, mark string) string {
		path := filepath.Join(dir, name)
		body := "#!/bin/sh\nfor i in \"$@\"; do echo \"" + mark + " $i\" >> " + state + "; done\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o755))

		return path
	}

	sw := switcher.New(process.NewExecRunner(nil), switcher.Options{
		GoodScript:  script("good.sh", "good"),
		BadScript:   script("bad.sh", "bad"),
		Incremental: true,
	}, nil)
	set := newSet(t)

	split, err := set.ComputePartition(1)
	require.NoError(t, err)

	_, err = sw.Apply(context.Background(), set, split, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(state)
	require.NoError(t, err)
	assert.Equal(t, "good c\ngood d\ngood e\nbad a\nbad b\n", string(data))
}

func TestChannels_Publish(t *testing.T) {
	t.Parallel()

	channels := switcher.NewChannels(t.TempDir())

	env, release, err := channels.Publish(partition.Split{Bad: []string{"a"}, Good: []string{"b", "c"}})
	require.NoError(t, err)
	require.Len(t, env, 2)

	paths := map[string]string{}

	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		require.True(t, ok)

		paths[key] = value
	}

	good, err := os.ReadFile(paths[switcher.DefaultGoodSetEnv])
	require.NoError(t, err)
	assert.Equal(t, "b\nc\n", string(good))

	bad, err := os.ReadFile(paths[switcher.DefaultBadSetEnv])
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(bad))

	require.NoError(t, release())

	_, err = os.Stat(paths[switcher.DefaultGoodSetEnv])
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is harmless.
	require.NoError(t, release())
}
