package ingest

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/store"
)

// Store is the consumer interface for ingestion (ISP).
type Store interface {
	Add(ctx context.Context, collection string, items []store.Item) error
}

// Cache resolves embeddings through the shared embedding cache.
type Cache interface {
	GetOrCompute(ctx context.Context, key, text string) ([]float32, error)
}
