package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage"
)

func TestLoad_FirstRunCreatesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := New(path, zap.NewNop())

	c, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.CursorID, c.ID)
	require.Equal(t, 0, c.Index)

	_, err = os.Stat(path)
	require.NoError(t, err, "first load must persist the record")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s := New(path, zap.NewNop())
	ctx := context.Background()

	c := model.NewCursor()
	c.Index = 7
	c.LastReplied["bluesky"] = "2024-01-01T00:00:00Z"
	require.NoError(t, s.Save(ctx, c))

	got, err := New(path, zap.NewNop()).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, got.Index)
	require.Equal(t, "2024-01-01T00:00:00Z", got.LastReplied["bluesky"])
	require.False(t, got.UpdatedAt.IsZero())

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.Empty(t, matches, "temp files must not be left behind")
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := New(path, zap.NewNop()).Load(context.Background())
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestLoad_WrongID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":3,"index":1}`), 0o600))
	_, err := New(path, zap.NewNop()).Load(context.Background())
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestSave_FailureKeepsPreviousRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	s := New(path, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, model.Cursor{Index: 4}))

	// a store pointing into a missing directory cannot write its temp file
	bad := New(filepath.Join(dir, "missing", "db.json"), zap.NewNop())
	require.Error(t, bad.Save(ctx, model.Cursor{Index: 5}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, got.Index)
}
