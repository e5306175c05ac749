package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyFillsUnsetFields(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date

	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	Version, Commit, Date = "dev", unknown, "2026-01-02"

	apply(&debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
		},
	})

	assert.Equal(t, "v1.4.0", Version)
	assert.Equal(t, "abc123", Commit)
	// Link-time values win.
	assert.Equal(t, "2026-01-02", Date)
	assert.Equal(t, "bisector v1.4.0 (commit: abc123, built: 2026-01-02)", String())
}

func TestApplyIgnoresDevelVersion(t *testing.T) {
	origVersion := Version

	t.Cleanup(func() { Version = origVersion })

	Version = "dev"

	apply(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

	assert.Equal(t, "dev", Version)
}
