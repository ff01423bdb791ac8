package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kpath-ai/kpath/domain/search"
)

// DefaultCacheSize is the default number of query embeddings kept in memory.
const DefaultCacheSize = 1024

// Cached wraps an Embedder with an LRU keyed by the SHA-256 of the
// normalized text. Query repetition is common in agent traffic, so the hot
// path usually skips the backend entirely.
type Cached struct {
	inner search.Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached creates a caching Embedder with the given capacity.
func NewCached(inner search.Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache}
}

// Identifier returns the inner backend's model identity.
func (c *Cached) Identifier() search.ModelID {
	return c.inner.Identifier()
}

// Embed returns cached vectors where available and computes the rest in a
// single backend call, preserving input order.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.cache.Add(c.key(texts[i]), vectors[j])
	}
	return out, nil
}

// key hashes the text together with the model identity so a backend change
// never serves stale vectors.
func (c *Cached) key(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.inner.Identifier().String()))
	return hex.EncodeToString(h[:])
}

var _ search.Embedder = (*Cached)(nil)
