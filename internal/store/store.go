// Package store defines the vector store contract the retrieval engine is
// built against. Collections are named, case-sensitive partitions of
// documents, created lazily on first write and never implicitly merged.
package store

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
)

// Item is a document ready for storage.
type Item struct {
	ID      string
	Content string
	Vector  []float32
	Meta    metadata.Metadata
}

// Hit is a single nearest-neighbor match. Distance is the raw cosine
// distance reported by the backend; score conversion happens in the
// retrieval layer.
type Hit struct {
	ID       string
	Content  string
	Meta     metadata.Metadata
	Vector   []float32
	Distance float64
}

// CollectionStore is the abstract vector store collaborator.
//
//nolint:interfacebloat // consumers depend on narrow sub-interfaces (ISP)
type CollectionStore interface {
	// Add stores items in a collection, creating the collection if needed.
	// An existing ID within the collection is overwritten.
	Add(ctx context.Context, collection string, items []Item) error
	// Query returns up to k nearest neighbors by vector similarity,
	// restricted to items matching the filter. A known but empty collection
	// yields an empty result, not an error.
	Query(ctx context.Context, collection string, vector []float32, k int, filter query.Filter) ([]Hit, error)
	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)
	// Delete removes a document by ID.
	Delete(ctx context.Context, collection, id string) error
	// Collections lists known collection names in lexical order.
	Collections(ctx context.Context) ([]string, error)
}

// Error wraps an underlying store error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
