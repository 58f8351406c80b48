// Package modelstore persists the trained estimator artifact and its
// retrain-tracking metadata across process restarts.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned by Load when no artifact has ever been saved.
var ErrNotFound = errors.New("no model artifact")

const (
	modelFile = "model.gob"
	metaFile  = "model_meta.json"
)

// Metadata tracks how stale the persisted model is relative to the ledger.
// ChangesSinceLastTrain only grows between trainings and resets to zero when
// a training commits; TotalRowsAtLastTrain snapshots the row count at that
// moment.
type Metadata struct {
	TotalRowsAtLastTrain  int64     `json:"total_rows_at_last_train"`
	ChangesSinceLastTrain int64     `json:"changes_since_last_train"`
	TrainedAt             time.Time `json:"trained_at,omitzero"`
}

// Store reads and writes the model artifact and metadata under a data
// directory. All writes go through a temp-file-then-rename so a crash
// mid-write never corrupts the previously committed state.
type Store struct {
	dir string
}

// New returns a Store rooted at dataDir. The directory is created lazily on
// first write.
func New(dataDir string) *Store {
	return &Store{dir: dataDir}
}

func (s *Store) modelPath() string { return filepath.Join(s.dir, modelFile) }
func (s *Store) metaPath() string  { return filepath.Join(s.dir, metaFile) }

// Save atomically replaces the model artifact and metadata.
func (s *Store) Save(model []byte, meta Metadata) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	if err := writeFileAtomic(s.modelPath(), model); err != nil {
		return fmt.Errorf("writing model artifact: %w", err)
	}
	if err := s.writeMetadata(meta); err != nil {
		return err
	}
	return nil
}

// Load returns the persisted model bytes and metadata. It returns
// ErrNotFound when no artifact has been saved; any other failure (including
// unreadable or corrupt metadata) is surfaced as-is.
func (s *Store) Load() ([]byte, Metadata, error) {
	model, err := os.ReadFile(s.modelPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, ErrNotFound
		}
		return nil, Metadata{}, fmt.Errorf("reading model artifact: %w", err)
	}

	meta, err := s.readMetadata()
	if err != nil {
		return nil, Metadata{}, err
	}
	return model, meta, nil
}

// UpdateMetadata increments the change counter by delta and persists the
// result immediately so the count survives a crash. The updated metadata is
// returned.
func (s *Store) UpdateMetadata(delta int64) (Metadata, error) {
	meta, err := s.readMetadata()
	if err != nil {
		return Metadata{}, err
	}
	meta.ChangesSinceLastTrain += delta
	if err := s.writeMetadata(meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Reset removes the persisted artifact and metadata. Missing files are not
// an error.
func (s *Store) Reset() error {
	for _, path := range []string{s.modelPath(), s.metaPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (s *Store) readMetadata() (Metadata, error) {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("reading model metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parsing model metadata: %w", err)
	}
	return meta, nil
}

func (s *Store) writeMetadata(meta Metadata) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model metadata: %w", err)
	}
	if err := writeFileAtomic(s.metaPath(), data); err != nil {
		return fmt.Errorf("writing model metadata: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs,
// and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
