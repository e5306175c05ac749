//go:build unix

package process_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bisector/pkg/process"
)

// groupHelperEnv names the marker file the helper's script creates once it
// is running. Its presence switches TestGroupInterruptHelper on.
const groupHelperEnv = "BISECTOR_GROUP_HELPER_MARKER"

// TestGroupInterruptHelper runs inside a child test binary. It survives
// SIGINT like bisector does and reports how its script ended.
func TestGroupInterruptHelper(t *testing.T) {
	marker := os.Getenv(groupHelperEnv)
	if marker == "" {
		t.Skip("runs only as a helper process")
	}

	signal.Notify(make(chan os.Signal, 1), os.Interrupt)

	runner := process.NewExecRunner(nil)

	res, err := runner.Run(context.Background(), process.Command{
		Script: `touch "` + marker + `"; sleep 0.5; exit 0`,
	})
	if err != nil {
		fmt.Println("error", err)

		return
	}

	fmt.Println(res.ExitCode, res.Signaled)
}

func TestExecRunner_ScriptSurvivesGroupInterrupt(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "started")

	var out bytes.Buffer

	helper := exec.Command(os.Args[0], "-test.run=^TestGroupInterruptHelper$")
	helper.Env = append(os.Environ(), groupHelperEnv+"="+marker)
	helper.Stdout = &out
	// The helper gets a group of its own so the interrupt stays inside it.
	helper.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	require.NoError(t, helper.Start())

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)

		return err == nil
	}, 10*time.Second, 10*time.Millisecond)

	// What a terminal Ctrl-C does: signal the whole foreground group.
	require.NoError(t, syscall.Kill(-helper.Process.Pid, syscall.SIGINT))
	require.NoError(t, helper.Wait(), out.String())

	firstLine, _, _ := strings.Cut(out.String(), "\n")
	assert.Equal(t, "0 false", firstLine)
}

func TestExecRunner_ReportsSignaledScript(t *testing.T) {
	t.Parallel()

	runner := process.NewExecRunner(nil)

	res, err := runner.Run(context.Background(), process.Command{Script: `kill -TERM $$`})
	require.NoError(t, err)
	assert.True(t, res.Signaled)
	assert.Equal(t, -1, res.ExitCode)
	assert.False(t, res.Success())
}
