package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersister_WriteRead(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{NewJSONCodec(), NewGobCodec(), NewLZ4Codec(NewGobCodec())} {
		t.Run(codec.Extension(), func(t *testing.T) {
			t.Parallel()

			p := NewPersister[record](codec)
			path := filepath.Join(t.TempDir(), "state"+p.Extension())

			original := sampleRecord()
			require.NoError(t, p.Write(path, &original))

			restored, err := p.Read(path)
			require.NoError(t, err)
			assert.Equal(t, original, *restored)
		})
	}
}

func TestPersister_WriteRefusesExisting(t *testing.T) {
	t.Parallel()

	p := NewPersister[record](NewJSONCodec())
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o600))

	original := sampleRecord()
	require.ErrorContains(t, p.Write(path, &original), "create record")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestPersister_FailedWriteLeavesNoFile(t *testing.T) {
	t.Parallel()

	type unencodable struct {
		C chan int
	}

	p := NewPersister[unencodable](NewJSONCodec())
	path := filepath.Join(t.TempDir(), "state.json")

	require.ErrorContains(t, p.Write(path, &unencodable{C: make(chan int)}), "encode record")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPersister_ReadErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[record](NewJSONCodec())

	_, err := p.Read(filepath.Join(dir, "missing.json"))
	require.ErrorContains(t, err, "open record")

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not json{{{"), 0o600))

	_, err = p.Read(corrupt)
	require.ErrorContains(t, err, "decode record")
}
