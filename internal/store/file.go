// Package store holds WaypointStore implementations. The file store keeps
// the plain-text waypoint format; see package sqlite for the database store.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/model"
)

// FileStore persists waypoint pairs in the text format understood by
// core.ParseWaypoints.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is not touched until
// Load or Save.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("waypoint path is required")
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads every pair. A missing file reports core.ErrNoWaypoints.
func (s *FileStore) Load(ctx context.Context) ([]model.WaypointPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrNoWaypoints
	}
	if err != nil {
		return nil, fmt.Errorf("open waypoints: %w", err)
	}
	defer f.Close()

	pairs, err := core.ParseWaypoints(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return pairs, nil
}

// Save replaces the file contents. The new contents are written to a
// temporary file in the same directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, pairs []model.WaypointPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp waypoint file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := core.WriteWaypoints(tmp, pairs); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write waypoints: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync waypoints: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close waypoints: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace waypoints: %w", err)
	}
	return nil
}

var _ core.WaypointStore = (*FileStore)(nil)
