// Package memory provides a brute-force in-memory CollectionStore.
// It exists for local runs and tests; any real vector database satisfying
// the same contract can replace it.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/store"
)

// Compile-time check: Store implements store.CollectionStore.
var _ store.CollectionStore = (*Store)(nil)

// Store keeps collections in process memory and answers similarity queries
// by exhaustive cosine scan. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	colls map[string]*collection
}

type collection struct {
	items []store.Item
	byID  map[string]int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{colls: make(map[string]*collection)}
}

// Add stores items, lazily creating the collection. Re-adding an existing
// ID replaces the stored item in place.
func (s *Store) Add(_ context.Context, name string, items []store.Item) error {
	if name == "" {
		return &store.Error{Op: "add", Err: fmt.Errorf("collection name is required")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.colls[name]
	if !ok {
		col = &collection{byID: make(map[string]int)}
		s.colls[name] = col
	}

	for _, item := range items {
		if idx, exists := col.byID[item.ID]; exists {
			col.items[idx] = item
			continue
		}
		col.byID[item.ID] = len(col.items)
		col.items = append(col.items, item)
	}
	return nil
}

// Query returns up to k nearest items by cosine distance, ascending.
// Ties keep insertion order so repeated queries are deterministic.
func (s *Store) Query(
	_ context.Context, name string, vector []float32, k int, filter query.Filter,
) ([]store.Hit, error) {
	if k <= 0 {
		return nil, &store.Error{Op: "query", Err: fmt.Errorf("k must be positive")}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.colls[name]
	if !ok {
		return nil, &store.Error{Op: "query", Err: fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)}
	}

	hits := make([]store.Hit, 0, len(col.items))
	for _, item := range col.items {
		if !filter.Matches(item.Meta) {
			continue
		}
		hits = append(hits, store.Hit{
			ID:       item.ID,
			Content:  item.Content,
			Meta:     item.Meta,
			Vector:   item.Vector,
			Distance: cosineDistance(vector, item.Vector),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.colls[name]
	if !ok {
		return 0, &store.Error{Op: "count", Err: fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)}
	}
	return len(col.items), nil
}

// Delete removes a document by ID.
func (s *Store) Delete(_ context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.colls[name]
	if !ok {
		return &store.Error{Op: "delete", Err: fmt.Errorf("%q: %w", name, domain.ErrCollectionNotFound)}
	}
	idx, ok := col.byID[id]
	if !ok {
		return &store.Error{Op: "delete", Err: fmt.Errorf("%q: %w", id, domain.ErrDocumentNotFound)}
	}

	col.items = append(col.items[:idx], col.items[idx+1:]...)
	delete(col.byID, id)
	for i := idx; i < len(col.items); i++ {
		col.byID[col.items[i].ID] = i
	}
	return nil
}

// Collections lists known collection names in lexical order.
func (s *Store) Collections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.colls))
	for name := range s.colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// cosineDistance returns 1 - cosine similarity. Zero-magnitude or
// mismatched vectors yield the maximum distance 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
