package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/store"
)

func seedStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	items := []store.Item{
		{ID: "a", Content: "alpha", Vector: []float32{1, 0}},
		{ID: "b", Content: "beta", Vector: []float32{0, 1}},
		{ID: "c", Content: "gamma", Vector: []float32{0.9, 0.1}},
	}
	if err := s.Add(context.Background(), "notes", items); err != nil {
		t.Fatalf("add: %v", err)
	}
	return s
}

func TestQuery_OrderedByDistance(t *testing.T) {
	s := seedStore(t)

	hits, err := s.Query(context.Background(), "notes", []float32{1, 0}, 10, query.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	// exact match first, orthogonal vector last
	if hits[0].ID != "a" || hits[2].ID != "b" {
		t.Fatalf("unexpected order: %s %s %s", hits[0].ID, hits[1].ID, hits[2].ID)
	}
	if hits[0].Distance > 1e-9 {
		t.Errorf("identical vector distance = %g, want ~0", hits[0].Distance)
	}
	if hits[2].Distance < 0.999 {
		t.Errorf("orthogonal vector distance = %g, want ~1", hits[2].Distance)
	}
}

func TestQuery_TruncatesToK(t *testing.T) {
	s := seedStore(t)
	hits, err := s.Query(context.Background(), "notes", []float32{1, 0}, 2, query.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
}

func TestQuery_Filter(t *testing.T) {
	s := New()
	ctx := context.Background()

	var mathMeta, bioMeta metadata.Metadata
	mathMeta.Set("subject", metadata.String("math"))
	bioMeta.Set("subject", metadata.String("biology"))

	err := s.Add(ctx, "notes", []store.Item{
		{ID: "m", Content: "algebra", Vector: []float32{1, 0}, Meta: mathMeta},
		{ID: "b", Content: "cells", Vector: []float32{1, 0}, Meta: bioMeta},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	f := query.Filter{}.Where("subject", metadata.String("math"))
	hits, err := s.Query(ctx, "notes", []float32{1, 0}, 10, f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m" {
		t.Fatalf("expected only the math hit, got %v", hits)
	}
}

func TestQuery_UnknownCollection(t *testing.T) {
	s := New()
	_, err := s.Query(context.Background(), "nope", []float32{1}, 5, query.Filter{})
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestAdd_ReplacesByID(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	err := s.Add(ctx, "notes", []store.Item{{ID: "a", Content: "alpha v2", Vector: []float32{0, 1}}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	n, err := s.Count(ctx, "notes")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected replace, not append: count = %d", n)
	}

	hits, err := s.Query(ctx, "notes", []float32{0, 1}, 1, query.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hits[0].ID != "a" || hits[0].Content != "alpha v2" {
		t.Fatalf("expected updated item, got %+v", hits[0])
	}
}

func TestDelete(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "notes", "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.Count(ctx, "notes"); n != 2 {
		t.Fatalf("count after delete = %d", n)
	}

	err := s.Delete(ctx, "notes", "b")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}

	// delete shifts indexes; remaining docs must stay addressable
	if err := s.Delete(ctx, "notes", "c"); err != nil {
		t.Fatalf("delete after shift: %v", err)
	}
	if n, _ := s.Count(ctx, "notes"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestCollections_Sorted(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := s.Add(ctx, name, []store.Item{{ID: "x", Content: "c", Vector: []float32{1}}}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	names, err := s.Collections(ctx)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestCosineDistance_Degenerate(t *testing.T) {
	if d := cosineDistance(nil, []float32{1}); d != 1 {
		t.Errorf("nil vector distance = %g, want 1", d)
	}
	if d := cosineDistance([]float32{0, 0}, []float32{0, 0}); d != 1 {
		t.Errorf("zero vector distance = %g, want 1", d)
	}
	if d := cosineDistance([]float32{1, 2}, []float32{1}); d != 1 {
		t.Errorf("mismatched dims distance = %g, want 1", d)
	}
}
