package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-session-client/storage"
	"github.com/stretchr/testify/require"
)

func TestFileRepo(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")

	repo, err := storage.NewFileRepo(dir)
	require.NoError(t, err)

	t.Run("missing key", func(t *testing.T) {
		_, err := repo.Get(ctx, "session")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "session", `{"id_user":"u1"}`))
		v, err := repo.Get(ctx, "session")
		require.NoError(t, err)
		require.Equal(t, `{"id_user":"u1"}`, v)
	})

	t.Run("set replaces", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "session", "second"))
		v, err := repo.Get(ctx, "session")
		require.NoError(t, err)
		require.Equal(t, "second", v)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, repo.Remove(ctx, "session"))
		_, err := repo.Get(ctx, "session")
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, repo.Remove(ctx, "session"))
	})

	t.Run("keys are escaped", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "../escape", "x"))
		v, err := repo.Get(ctx, "../escape")
		require.NoError(t, err)
		require.Equal(t, "x", v)
		_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.json"))
		require.True(t, os.IsNotExist(err))
	})
}

func TestNewFileRepoRequiresDir(t *testing.T) {
	_, err := storage.NewFileRepo("")
	require.Error(t, err)
}
