package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/store"
)

// Store is the consumer interface for retrieval (ISP).
type Store interface {
	Query(ctx context.Context, collection string, vector []float32, k int, filter query.Filter) ([]store.Hit, error)
	Collections(ctx context.Context) ([]string, error)
}

// Cache resolves embeddings through the shared embedding cache.
type Cache interface {
	GetOrCompute(ctx context.Context, key, text string) ([]float32, error)
}
