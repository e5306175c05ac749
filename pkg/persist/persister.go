package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// filePerm is the mode of written record files.
const filePerm = 0o600

// Persister reads and writes records of a single type using a Codec.
type Persister[T any] struct {
	codec Codec
}

// NewPersister creates a persister with the given codec.
func NewPersister[T any](codec Codec) *Persister[T] {
	return &Persister[T]{codec: codec}
}

// Extension returns the file extension of written records.
func (p *Persister[T]) Extension() string {
	return p.codec.Extension()
}

// Write encodes state into a new file at path and syncs it to disk. path must
// not exist; a partially written file is removed on failure.
func (p *Persister[T]) Write(path string, state *T) (err error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close record: %w", closeErr)
		}

		if err != nil {
			err = errors.Join(err, os.Remove(path))
		}
	}()

	err = p.codec.Encode(file, state)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	err = file.Sync()
	if err != nil {
		return fmt.Errorf("sync record: %w", err)
	}

	return nil
}

// Read decodes the record at path.
func (p *Persister[T]) Read(path string) (*T, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open record: %w", err)
	}
	defer file.Close()

	var state T

	err = p.codec.Decode(file, &state)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	return &state, nil
}
