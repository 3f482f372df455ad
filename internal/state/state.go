// Package state persists the small amount of run-to-run memory the pipeline
// needs: per-table column order and the last successful run marker.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// State is the persisted run state.
//
// Columns records the first-seen column order per table so output column
// order stays stable across runs even as tables grow. LastRun is an RFC3339
// timestamp handed to sources for incremental extraction.
type State struct {
	Columns map[string][]string `json:"columns"`
	LastRun string              `json:"last_run"`
}

// Store loads and saves pipeline state.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps state in a single JSON file. A missing file loads as zero
// state, so first runs need no setup.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (State, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{Columns: map[string][]string{}}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("state: read %s: %w", s.Path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("state: parse %s: %w", s.Path, err)
	}
	if st.Columns == nil {
		st.Columns = map[string][]string{}
	}
	return st, nil
}

// Save writes state atomically via a temp file and rename, so a crash mid-write
// never leaves a truncated state file behind.
func (s *FileStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("state: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("state: rename %s: %w", s.Path, err)
	}
	return nil
}
