package artifacts

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

type previewEntry struct {
	digest    string
	updatedAt time.Time
	text      string
}

// PreviewCache holds truncated artifact previews for presentation layers.
// An entry is reused only while the artifact's digest and updatedAt are unchanged.
type PreviewCache struct {
	store *Store
	limit int

	mu      sync.Mutex
	entries map[string]previewEntry
	loads   int
}

// NewPreviewCache creates a cache returning at most limit bytes per preview.
func NewPreviewCache(store *Store, limit int) *PreviewCache {
	if limit <= 0 {
		limit = 4096
	}
	return &PreviewCache{store: store, limit: limit, entries: make(map[string]previewEntry)}
}

func cacheKey(entry domain.ArtifactEntry) string {
	return entry.Path
}

// Preview returns the (possibly cached) preview for entry.
func (c *PreviewCache) Preview(ctx context.Context, entry domain.ArtifactEntry) (string, error) {
	key := cacheKey(entry)

	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()
	if ok && cached.digest == entry.Digest && cached.updatedAt.Equal(entry.UpdatedAt) {
		return cached.text, nil
	}

	data, err := c.store.Read(ctx, entry)
	if err != nil {
		return "", err
	}
	text := truncate(data, c.limit)

	c.mu.Lock()
	c.entries[key] = previewEntry{digest: entry.Digest, updatedAt: entry.UpdatedAt, text: text}
	c.loads++
	c.mu.Unlock()
	return text, nil
}

// Invalidate drops the cached preview for entry.
func (c *PreviewCache) Invalidate(entry domain.ArtifactEntry) {
	c.mu.Lock()
	delete(c.entries, cacheKey(entry))
	c.mu.Unlock()
}

// Loads reports how many previews were read from the store.
func (c *PreviewCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	cut := data[:limit]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "…"
}
