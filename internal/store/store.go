package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

var (
	// ErrNotFound means there is no state file yet.
	ErrNotFound = errors.New("state file not found")
	// ErrParse means the state file exists but does not hold a state tree.
	ErrParse = errors.New("state file malformed")
	// ErrIO covers every other read or write failure.
	ErrIO = errors.New("state file io")
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted tree. All errors are recoverable: callers start
// from the configured topology instead.
func (s *Store) Load() (*model.State, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, s.path, err)
	}

	if len(bytes.TrimSpace(contents)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrParse, s.path)
	}

	var state model.State
	if err := json.Unmarshal(contents, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, s.path, err)
	}
	return &state, nil
}

// Save writes the whole tree to a temp file and renames it over the old one.
func (s *Store) Save(state *model.State) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
		}
	}

	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, tmpPath, err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: encode state: %v", ErrIO, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrIO, tmpPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrIO, tmpPath, err)
	}
	return nil
}
