package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/bisector/pkg/persist"
)

// Sentinel errors for loading.
var (
	ErrNoState      = errors.New("no saved state")
	ErrCorruptState = errors.New("saved state is unreadable")
)

// DefaultStateFile is the reference path used when none is configured.
const DefaultStateFile = ".bisector_state"

// Directory permissions for the state location.
const dirPerm = 0o750

// Manager stores snapshots behind a single well-known reference. The
// reference is a symlink to the latest complete record; records are never
// modified after they are written.
type Manager struct {
	path      string
	codec     persist.Codec
	persister *persist.Persister[Snapshot]
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a manager whose reference lives at path. codec is used
// for writing; records are read with the codec their name records.
func NewManager(path string, codec persist.Codec, logger *slog.Logger) *Manager {
	if path == "" {
		path = DefaultStateFile
	}

	if codec == nil {
		codec = persist.NewJSONCodec()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		path:      filepath.Clean(path),
		codec:     codec,
		persister: persist.NewPersister[Snapshot](codec),
		logger:    logger,
		now:       time.Now,
	}
}

// Path returns the reference path.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether a reference is present. It says nothing about
// whether the record behind it is readable.
func (m *Manager) Exists() bool {
	_, err := os.Lstat(m.path)

	return err == nil
}

// Save writes snap to a new record, repoints the reference at it and then
// removes the previous record. A crash at any step leaves the reference on a
// complete record.
func (m *Manager) Save(snap *Snapshot) error {
	dir := filepath.Dir(m.path)

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	snap.Version = SnapshotVersion
	snap.SavedAt = m.now().UTC()

	previous, err := m.target()
	if err != nil && !errors.Is(err, ErrNoState) {
		m.logger.Warn("replacing unreadable state reference", "path", m.path, "error", err)
	}

	record := m.recordName()
	recordPath := filepath.Join(dir, record)

	writeErr := m.persister.Write(recordPath, snap)
	if writeErr != nil {
		return fmt.Errorf("save state: %w", writeErr)
	}

	linkErr := m.repoint(record)
	if linkErr != nil {
		return errors.Join(fmt.Errorf("save state: %w", linkErr), os.Remove(recordPath))
	}

	syncDir(dir)

	if previous != "" && previous != recordPath {
		rmErr := os.Remove(previous)
		if rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.Warn("failed to remove superseded state record", "path", previous, "error", rmErr)
		}
	}

	return nil
}

// Peek returns the saved snapshot exactly as recorded.
func (m *Manager) Peek() (*Snapshot, error) {
	record, err := m.target()
	if err != nil {
		return nil, err
	}

	snap, err := m.readerFor(record).Read(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	validateErr := snap.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, validateErr)
	}

	return snap, nil
}

// readerFor picks the persister for record from its extension, so a record
// stays readable when the configured codec has changed since it was written.
func (m *Manager) readerFor(record string) *persist.Persister[Snapshot] {
	codec, err := persist.ForExtension(record)
	if err != nil || codec.Extension() == m.codec.Extension() {
		return m.persister
	}

	m.logger.Debug("reading state with the codec it was written with",
		"record", record, "extension", codec.Extension())

	return persist.NewPersister[Snapshot](codec)
}

// Load returns the saved snapshot prepared for resuming: the environment
// tracking sets are cleared and a fresh elapsed-time origin is set, while the
// cycle counters are kept.
func (m *Manager) Load() (*Snapshot, error) {
	snap, err := m.Peek()
	if err != nil {
		return nil, err
	}

	snap.prepareResume(m.now().UTC())

	return snap, nil
}

// Remove deletes the reference and the record it points at. It is a no-op
// when no state exists.
func (m *Manager) Remove() error {
	record, targetErr := m.target()

	var errs []error

	if targetErr == nil {
		errs = append(errs, removeIfExists(record))
	}

	errs = append(errs, removeIfExists(m.path))

	joined := errors.Join(errs...)
	if joined != nil {
		return fmt.Errorf("remove state: %w", joined)
	}

	return nil
}

// target resolves the reference to the record path.
func (m *Manager) target() (string, error) {
	link, err := os.Readlink(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoState
		}

		return "", fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	if !filepath.IsAbs(link) {
		link = filepath.Join(filepath.Dir(m.path), link)
	}

	return link, nil
}

// repoint atomically replaces the reference with a symlink to record.
func (m *Manager) repoint(record string) error {
	tmp := m.path + ".tmp-" + uuid.NewString()

	err := os.Symlink(record, tmp)
	if err != nil {
		return fmt.Errorf("create reference: %w", err)
	}

	err = os.Rename(tmp, m.path)
	if err != nil {
		return errors.Join(fmt.Errorf("swap reference: %w", err), os.Remove(tmp))
	}

	return nil
}

// recordName is relative to the reference's directory so the state location
// can be moved as a whole.
func (m *Manager) recordName() string {
	return filepath.Base(m.path) + "." + uuid.NewString() + m.persister.Extension()
}

// syncDir flushes directory entries. Not every platform supports it, so
// failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}

	_ = d.Sync()
	_ = d.Close()
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
