package embcache

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

type mockEmbedder struct {
	calls  int
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}}
	c := New(inner, nil)
	ctx := context.Background()

	vec, err := c.GetOrCompute(ctx, "doc1", "some text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", inner.calls)
	}

	// second call with the same key comes from the cache
	if _, err := c.GetOrCompute(ctx, "doc1", "some text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected cached result, provider called %d times", inner.calls)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestGetOrCompute_KeysAreIndependent(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	c := New(inner, nil)
	ctx := context.Background()

	// Same text under two keys: каждый ключ считается отдельно.
	if _, err := c.GetOrCompute(ctx, "k1", "shared text"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrCompute(ctx, "k2", "shared text"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", inner.calls)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	c := New(inner, nil)
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, "doc1", "text"); err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Fatal("failed compute must not be cached")
	}

	// provider recovers; same key is retried
	inner.err = nil
	inner.result = domain.EmbeddingResult{Embedding: []float32{0.5}}
	vec, err := c.GetOrCompute(ctx, "doc1", "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 0.5 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", inner.calls)
	}
}

func TestEvict(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	c := New(inner, nil)
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, "doc1", "text"); err != nil {
		t.Fatal(err)
	}
	c.Evict("doc1")
	if c.Len() != 0 {
		t.Fatalf("Len after evict = %d", c.Len())
	}

	if _, err := c.GetOrCompute(ctx, "doc1", "text"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected recompute after evict, calls = %d", inner.calls)
	}
}
