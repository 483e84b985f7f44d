package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage"
)

// DefaultPath is where the cursor lives when no path is configured
const DefaultPath = "./db.json"

// Ensure Store implements CursorStore interface
var _ storage.CursorStore = (*Store)(nil)

// Store keeps the cursor in a JSON file. Saves replace the file atomically.
type Store struct {
	path   string
	logger *zap.Logger
	mtx    sync.Mutex
}

// New creates a new file store
func New(path string, logger *zap.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, logger: logger}
}

// Load reads the cursor, writing a first-run record when the file is missing
func (s *Store) Load(ctx context.Context) (model.Cursor, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		c := model.NewCursor()
		if err := s.write(c); err != nil {
			return model.Cursor{}, err
		}
		s.logger.Info("cursor initialized with new data", zap.String("path", s.path))
		return c, nil
	}
	if err != nil {
		return model.Cursor{}, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	var c model.Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return model.Cursor{}, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, s.path, err)
	}
	if err := storage.Validate(c); err != nil {
		return model.Cursor{}, err
	}
	return c, nil
}

// Save overwrites the cursor file
func (s *Store) Save(ctx context.Context, c model.Cursor) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	c.ID = model.CursorID
	return s.write(c)
}

// Close is a no-op
func (s *Store) Close() error { return nil }

// write replaces the file via a synced temp file and rename, so a crash
// leaves either the old or the new record
func (s *Store) write(c model.Cursor) error {
	c.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal cursor: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("file: rename: %w", err)
	}
	return nil
}
