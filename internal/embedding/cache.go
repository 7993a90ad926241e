package embedding

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"graphrag/internal/logging"
)

// CachedEngine wraps an Engine with a bounded cache of embeddings for
// identical texts, keyed by (text, model). Entries are immutable and safe to
// share across pipelines. Concurrent requests for the same text collapse into
// one upstream call.
type CachedEngine struct {
	inner   Engine
	mu      sync.RWMutex
	entries map[string][]float32
	order   []string // insertion order for eviction
	maxSize int
	group   singleflight.Group
}

// NewCachedEngine wraps an engine with an identical-text cache.
func NewCachedEngine(inner Engine, maxSize int) *CachedEngine {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachedEngine{
		inner:   inner,
		entries: make(map[string][]float32),
		maxSize: maxSize,
	}
}

func (c *CachedEngine) key(text string) string {
	return c.inner.Model() + "\x00" + text
}

// Embed returns the cached embedding for text, or embeds and caches it.
func (c *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	key := c.key(text)
	c.mu.RLock()
	if vec, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		logging.EmbeddingDebug("Embed cache hit (%d cached)", len(c.entries))
		return vec, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *CachedEngine) store(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	// FIFO eviction keeps the implementation simple; the cache exists to
	// absorb repeated identical questions, not to be an LRU.
	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = vec
	c.order = append(c.order, key)
}

// EmbedBatch serves cached items and forwards only the misses upstream.
func (c *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	c.mu.RLock()
	for i, text := range texts {
		if text == "" {
			c.mu.RUnlock()
			return nil, ErrEmptyText
		}
		if vec, ok := c.entries[c.key(text)]; ok {
			results[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	c.mu.RUnlock()

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			results[idx] = vecs[j]
			c.store(c.key(missTexts[j]), vecs[j])
		}
	}

	return results, nil
}

// Dimensions returns the inner engine's dimensionality.
func (c *CachedEngine) Dimensions() int { return c.inner.Dimensions() }

// Model returns the inner engine's model identifier.
func (c *CachedEngine) Model() string { return c.inner.Model() }

// MaxLength returns the inner engine's maximum input length.
func (c *CachedEngine) MaxLength() int { return c.inner.MaxLength() }

// Len returns the current number of cached embeddings.
func (c *CachedEngine) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
