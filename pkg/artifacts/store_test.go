package artifacts_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stevekinney/silvan-sub003/pkg/artifacts"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(fs afero.Fs) *artifacts.Store {
	return artifacts.New("/state/artifacts", artifacts.WithFs(fs))
}

func TestStore_WriteJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(fs)
	ctx := context.Background()

	entry, err := store.Write(ctx, "run-1", "plan", "plan", map[string]any{"steps": 3})
	require.NoError(t, err)
	assert.Equal(t, domain.ArtifactJSON, entry.Kind)
	assert.True(t, strings.HasSuffix(entry.Path, "plan.json"))
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, entry.Digest)

	var out map[string]int
	require.NoError(t, store.ReadJSON(ctx, entry, &out))
	assert.Equal(t, 3, out["steps"])

	raw, err := store.Read(ctx, entry)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"steps\": 3", "json artifacts are formatted")
}

func TestStore_WriteText(t *testing.T) {
	store := newStore(afero.NewMemMapFs())
	ctx := context.Background()

	entry, err := store.Write(ctx, "run-1", "verify", "stdout", "line 1\nline 2\n")
	require.NoError(t, err)
	assert.Equal(t, domain.ArtifactText, entry.Kind)
	assert.True(t, strings.HasSuffix(entry.Path, "stdout.txt"))

	raw, err := store.Read(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", string(raw))

	assert.Error(t, store.ReadJSON(ctx, entry, &struct{}{}))
}

func TestStore_DigestIsContentAddressed(t *testing.T) {
	store := newStore(afero.NewMemMapFs())
	ctx := context.Background()

	a, err := store.Write(ctx, "run-1", "plan", "plan", map[string]int{"n": 1})
	require.NoError(t, err)
	b, err := store.Write(ctx, "run-1", "plan", "plan", map[string]int{"n": 1})
	require.NoError(t, err)
	c, err := store.Write(ctx, "run-1", "plan", "plan", map[string]int{"n": 2})
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, c.Digest)
	assert.Equal(t, a.Path, c.Path, "same key, replaced by rename")

	ok, err := store.Verify(ctx, c)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Verify(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(fs)
	entry, err := store.Write(context.Background(), "run-1", "plan", "plan", "x")
	require.NoError(t, err)

	infos, err := afero.ReadDir(fs, "/state/artifacts/run-1/plan")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "plan.txt", infos[0].Name())
	assert.Equal(t, "plan", entry.StepID)
}

func TestStore_SanitizesPathParts(t *testing.T) {
	store := newStore(afero.NewMemMapFs())
	entry, err := store.Write(context.Background(), "run-1", "ci.wait", "../escape", "x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.Path, "/state/artifacts/run-1/ci.wait/"))
	assert.NotContains(t, strings.TrimPrefix(entry.Path, "/state/artifacts/"), "..")
}

func TestPreviewCache_InvalidatesOnDigestOrTime(t *testing.T) {
	store := newStore(afero.NewMemMapFs())
	cache := artifacts.NewPreviewCache(store, 5)
	ctx := context.Background()

	entry, err := store.Write(ctx, "run-1", "verify", "log", "abcdefghij")
	require.NoError(t, err)

	text, err := cache.Preview(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, "abcde…", text)

	_, err = cache.Preview(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Loads(), "unchanged entry served from cache")

	entry2, err := store.Write(ctx, "run-1", "verify", "log", "xyz")
	require.NoError(t, err)
	text, err = cache.Preview(ctx, entry2)
	require.NoError(t, err)
	assert.Equal(t, "xyz", text)
	assert.Equal(t, 2, cache.Loads())

	touched := entry2
	touched.UpdatedAt = entry2.UpdatedAt.Add(time.Second)
	_, err = cache.Preview(ctx, touched)
	require.NoError(t, err)
	assert.Equal(t, 3, cache.Loads())

	cache.Invalidate(touched)
	_, err = cache.Preview(ctx, touched)
	require.NoError(t, err)
	assert.Equal(t, 4, cache.Loads())
}
