// Package embcache provides the process-lifetime embedding cache.
// One cache instance is shared by all search and ingest calls; it is owned
// by the composition root and passed explicitly, never a package global.
package embcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Cache memoizes text embeddings keyed by a caller-chosen stable key:
// a document ID at ingestion, the raw query text at search time.
// Entries live for the process lifetime; the caller may evict explicitly.
//
// Concurrent computes for the same uncached key may both hit the provider;
// the last write wins. That is harmless (same key, same vector), so no
// in-flight guard is kept.
type Cache struct {
	inner      domain.Embedder
	cacheTotal *prometheus.CounterVec

	mu      sync.RWMutex
	vectors map[string][]float32
}

// New creates a cache around the given embedder.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(inner domain.Embedder, cacheTotal *prometheus.CounterVec) *Cache {
	return &Cache{
		inner:      inner,
		cacheTotal: cacheTotal,
		vectors:    make(map[string][]float32),
	}
}

// GetOrCompute returns the cached vector for key, or embeds text, stores the
// result under key, and returns it. Provider failures propagate unchanged
// (no retry, nothing cached).
func (c *Cache) GetOrCompute(ctx context.Context, key, text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.vectors[key]
	c.mu.RUnlock()
	if ok {
		c.inc("hit")
		return vec, nil
	}

	c.inc("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	c.mu.Lock()
	c.vectors[key] = result.Embedding
	c.mu.Unlock()

	return result.Embedding, nil
}

// Evict removes a cached entry.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	delete(c.vectors, key)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
