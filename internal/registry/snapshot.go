package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// SnapshotStore persists the full request set as a single JSON file.
// The file is rewritten atomically (temp file + rename) on every save, with
// an advisory lock held so concurrent service instances cannot interleave.
type SnapshotStore struct {
	path string
	lock *flock.Flock
}

// NewSnapshotStore creates a store writing to the given path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Save rewrites the snapshot with the given records.
func (s *SnapshotStore) Save(records []*Request) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock snapshot: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()          //nolint:errcheck
		os.Remove(tmpName)   //nolint:errcheck
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file yields an empty set, not an error.
func (s *SnapshotStore) Load() ([]*Request, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock snapshot: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var records []*Request
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return records, nil
}
