package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/store"
)

type mockStore struct {
	mu    sync.Mutex
	adds  [][]store.Item
	addFn func(collection string, items []store.Item) error
}

func (m *mockStore) Add(_ context.Context, collection string, items []store.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addFn != nil {
		if err := m.addFn(collection, items); err != nil {
			return err
		}
	}
	cp := make([]store.Item, len(items))
	copy(cp, items)
	m.adds = append(m.adds, cp)
	return nil
}

type mockCache struct {
	mu    sync.Mutex
	keys  []string
	embFn func(key, text string) ([]float32, error)
}

func (m *mockCache) GetOrCompute(_ context.Context, key, text string) ([]float32, error) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	if m.embFn != nil {
		return m.embFn(key, text)
	}
	return []float32{0.1, 0.2}, nil
}

func newTestService(t *testing.T, ms *mockStore, mc *mockCache) *Service {
	t.Helper()
	svc, err := New(ms, mc, zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestIngest_Basic(t *testing.T) {
	ms := &mockStore{}
	mc := &mockCache{}
	svc := newTestService(t, ms, mc)

	var meta metadata.Metadata
	meta.Set("subject", metadata.String("math"))

	rep, err := svc.Ingest(context.Background(), "notes", []Source{
		{Content: "pythagorean theorem", Meta: meta},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Total != 1 || rep.Inserted != 1 || !rep.Success {
		t.Fatalf("unexpected report: %+v", rep)
	}

	items := ms.adds[0]
	if items[0].ID != StableID("pythagorean theorem", meta) {
		t.Errorf("ID = %q, want stable hash", items[0].ID)
	}
	if len(items[0].Vector) != 2 {
		t.Errorf("vector not attached: %v", items[0].Vector)
	}
	if v, ok := items[0].Meta.Get(AddedAtKey); !ok || v.Str() != "2026-03-01T12:00:00Z" {
		t.Errorf("added_at = %v", v)
	}
	// embedding cached under the document ID
	if mc.keys[0] != items[0].ID {
		t.Errorf("cache key = %q, want the document ID", mc.keys[0])
	}
}

func TestIngest_CollisionSuffixes(t *testing.T) {
	ms := &mockStore{}
	svc := newTestService(t, ms, &mockCache{})

	src := Source{Content: "same content"}
	rep, err := svc.Ingest(context.Background(), "notes", []Source{src, src, src})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Inserted != 3 {
		t.Fatalf("Inserted = %d", rep.Inserted)
	}

	base := StableID("same content", metadata.Metadata{})
	items := ms.adds[0]
	want := []string{base, base + "_1", base + "_2"}
	for i, w := range want {
		if items[i].ID != w {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, w)
		}
	}
}

func TestIngest_StableIDIgnoresAddedAt(t *testing.T) {
	// added_at is stamped after hashing: same source re-ingested later keeps its ID.
	ms := &mockStore{}
	svc := newTestService(t, ms, &mockCache{})
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "notes", []Source{{Content: "text"}}); err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := svc.Ingest(ctx, "notes", []Source{{Content: "text"}}); err != nil {
		t.Fatal(err)
	}

	if ms.adds[0][0].ID != ms.adds[1][0].ID {
		t.Fatalf("IDs differ across runs: %q vs %q", ms.adds[0][0].ID, ms.adds[1][0].ID)
	}
}

func TestIngest_RejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty content", ""},
		{"oversized content", strings.Repeat("a", document.MaxContentSize+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStore{}
			svc := newTestService(t, ms, &mockCache{})

			rep, err := svc.Ingest(context.Background(), "notes", []Source{
				{Content: "valid document"},
				{Content: tc.content},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if rep.Success || rep.Inserted != 0 {
				t.Errorf("unexpected report: %+v", rep)
			}
			// invalid batches never reach the store
			if len(ms.adds) != 0 {
				t.Errorf("store received %d batches, want 0", len(ms.adds))
			}
		})
	}
}

func TestIngest_ChunksLargeBatches(t *testing.T) {
	ms := &mockStore{}
	svc := newTestService(t, ms, &mockCache{})

	sources := make([]Source, 150)
	for i := range sources {
		sources[i] = Source{Content: fmt.Sprintf("doc %d", i)}
	}

	rep, err := svc.Ingest(context.Background(), "notes", sources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Inserted != 150 || !rep.Success {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(ms.adds) != 2 {
		t.Fatalf("expected 2 store submissions, got %d", len(ms.adds))
	}
	if len(ms.adds[0]) != 100 || len(ms.adds[1]) != 50 {
		t.Fatalf("chunk sizes = %d/%d, want 100/50", len(ms.adds[0]), len(ms.adds[1]))
	}
}

func TestIngest_PartialFailure(t *testing.T) {
	ms := &mockStore{}
	calls := 0
	ms.addFn = func(string, []store.Item) error {
		calls++
		if calls == 2 {
			return errors.New("store down")
		}
		return nil
	}
	svc := newTestService(t, ms, &mockCache{}).WithBatchSize(10)

	sources := make([]Source, 25)
	for i := range sources {
		sources[i] = Source{Content: fmt.Sprintf("doc %d", i)}
	}

	rep, err := svc.Ingest(context.Background(), "notes", sources)
	if err == nil {
		t.Fatal("expected error")
	}
	var partial *domain.IngestPartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected IngestPartialError, got %v", err)
	}
	if partial.Inserted != 10 {
		t.Errorf("partial.Inserted = %d, want 10", partial.Inserted)
	}
	if rep.Success || rep.Inserted != 10 || rep.Total != 25 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestIngest_EmbeddingFailureFirstChunk(t *testing.T) {
	mc := &mockCache{embFn: func(string, string) ([]float32, error) {
		return nil, fmt.Errorf("quota: %w", domain.ErrEmbeddingProviderError)
	}}
	svc := newTestService(t, &mockStore{}, mc)

	rep, err := svc.Ingest(context.Background(), "notes", []Source{{Content: "a"}, {Content: "b"}})
	if err == nil {
		t.Fatal("expected error")
	}
	// nothing inserted yet, so the error is not wrapped as partial
	var partial *domain.IngestPartialError
	if errors.As(err, &partial) {
		t.Fatalf("expected plain error, got partial: %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("sentinel lost: %v", err)
	}
	if rep.Inserted != 0 || rep.Success {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestIngest_EmptyBatch(t *testing.T) {
	svc := newTestService(t, &mockStore{}, &mockCache{})
	rep, err := svc.Ingest(context.Background(), "notes", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.Success || rep.Total != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestIngest_EmptyCollection(t *testing.T) {
	svc := newTestService(t, &mockStore{}, &mockCache{})
	if _, err := svc.Ingest(context.Background(), "", []Source{{Content: "x"}}); err == nil {
		t.Fatal("expected error for empty collection name")
	}
}

func TestStableID_MetadataOrderMatters(t *testing.T) {
	var a, b metadata.Metadata
	a.Set("x", metadata.String("1"))
	a.Set("y", metadata.String("2"))
	b.Set("y", metadata.String("2"))
	b.Set("x", metadata.String("1"))

	if StableID("c", a) == StableID("c", b) {
		t.Fatal("expected order-sensitive IDs")
	}
	if StableID("c", a) != StableID("c", a) {
		t.Fatal("expected deterministic IDs")
	}
}
