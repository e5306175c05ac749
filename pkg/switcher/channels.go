package switcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/bisector/pkg/partition"
)

// Default environment variable names exposing the current split to scripts.
const (
	DefaultGoodSetEnv = "BISECT_GOOD_SET"
	DefaultBadSetEnv  = "BISECT_BAD_SET"
)

// Channels publishes the members of a split as two files whose paths are
// exported through environment variables.
type Channels struct {
	Dir     string
	GoodVar string
	BadVar  string
}

// NewChannels creates channels writing under dir with the default variable names.
func NewChannels(dir string) *Channels {
	return &Channels{Dir: dir, GoodVar: DefaultGoodSetEnv, BadVar: DefaultBadSetEnv}
}

// Publish writes split to the set files and returns the KEY=VALUE pairs
// pointing at them. The release function removes the files; the paths are
// only valid until it is called.
func (c *Channels) Publish(split partition.Split) ([]string, func() error, error) {
	goodPath, err := writeList(c.Dir, "good-set-*.txt", split.Good)
	if err != nil {
		return nil, nil, fmt.Errorf("publish good set: %w", err)
	}

	badPath, err := writeList(c.Dir, "bad-set-*.txt", split.Bad)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("publish bad set: %w", err), os.Remove(goodPath))
	}

	env := []string{
		c.GoodVar + "=" + goodPath,
		c.BadVar + "=" + badPath,
	}

	release := func() error {
		return errors.Join(removeIfExists(goodPath), removeIfExists(badPath))
	}

	return env, release, nil
}

// writeList stores items one per line in a new file matching pattern.
func writeList(dir, pattern string, items []string) (string, error) {
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create list file: %w", err)
	}

	content := strings.Join(items, "\n")
	if len(items) > 0 {
		content += "\n"
	}

	_, writeErr := file.WriteString(content)
	closeErr := file.Close()

	joined := errors.Join(writeErr, closeErr)
	if joined != nil {
		return "", errors.Join(fmt.Errorf("write list file: %w", joined), os.Remove(file.Name()))
	}

	return filepath.Clean(file.Name()), nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}
