package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/adapters/file"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.RunStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_CorruptDocumentIsNotFound(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-1.json"), []byte(`{"version":"1.0.0","runId":`), 0o644))

	_, err := store.Load(context.Background(), "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestFileStore_RejectsPathLikeRunID(t *testing.T) {
	root := t.TempDir()
	store := file.New(filepath.Join(root, "runs"))
	ctx := context.Background()

	err := store.Save(ctx, "../escape", domain.NewRunState("../escape", "plan", time.Now().UTC()))
	assert.ErrorIs(t, err, domain.ErrInvalidRunID)
	assert.NoFileExists(t, filepath.Join(root, "escape.json"))

	_, err = store.Load(ctx, "../escape")
	assert.ErrorIs(t, err, domain.ErrInvalidRunID)
	assert.ErrorIs(t, store.Delete(ctx, "a/b"), domain.ErrInvalidRunID)
}

func TestFileStore_InterruptedWriteKeepsPreviousDocument(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	state := domain.NewRunState("run-1", "plan", time.Now().UTC())
	require.NoError(t, store.Save(ctx, "run-1", state))

	// A crash between temp write and rename leaves only a stray temp file behind.
	stray := filepath.Join(dir, ".tmp-run-1.json-crashed")
	require.NoError(t, os.WriteFile(stray, []byte(`{"partial`), 0o644))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "plan", loaded.Data.Run.Phase)

	runs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, runs)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		state := domain.NewRunState("run-1", "plan", time.Now().UTC())
		state.Data.Run.Attempt = i
		require.NoError(t, store.Save(ctx, "run-1", state))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1.json", entries[0].Name())
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	runs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWriteAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.txt")
	require.NoError(t, file.WriteAtomic(path, []byte("one")))
	require.NoError(t, file.WriteAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}
