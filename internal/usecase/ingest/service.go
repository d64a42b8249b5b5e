// Package ingest turns raw (content, metadata) pairs into stored documents:
// stable content-hash IDs, in-batch collision suffixes, cached embeddings,
// and chunked store submission.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/store"
)

// DefaultBatchSize bounds the number of items per store submission.
const DefaultBatchSize = 100

// DefaultWorkers is the embedding worker pool size.
const DefaultWorkers = 4

// AddedAtKey is the metadata field stamped on every ingested document.
const AddedAtKey = "added_at"

// Source is one unit of ingestable content.
type Source struct {
	Content string
	Meta    metadata.Metadata
}

// Report summarizes an ingestion run. Inserted counts documents confirmed
// by the store; Success is false whenever Inserted < Total.
type Report struct {
	Total    int
	Inserted int
	Success  bool
}

// Service ingests documents into a collection.
type Service struct {
	store     Store
	cache     Cache
	pool      *ants.Pool
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an ingest service with a dedicated embedding worker pool.
func New(s Store, cache Cache, logger *zap.Logger) (*Service, error) {
	pool, err := ants.NewPool(DefaultWorkers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Service{
		store:     s,
		cache:     cache,
		pool:      pool,
		batchSize: DefaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// WithBatchSize configures the store submission chunk size.
func (s *Service) WithBatchSize(size int) *Service {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// WithWorkers resizes the embedding worker pool.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.pool.Tune(n)
	}
	return s
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Ingest stores sources in a collection. Document IDs are stable hashes of
// content plus metadata; duplicates within the same call get "_1", "_2", ...
// suffixes. Embeddings go through the shared cache keyed by document ID.
//
// The store collaborator is not transactional across chunks: an embedding or
// store failure aborts the remaining batch, and anything already submitted
// stays submitted. Such runs return Success=false together with the error.
func (s *Service) Ingest(ctx context.Context, collection string, sources []Source) (Report, error) {
	report := Report{Total: len(sources)}
	if collection == "" {
		return report, fmt.Errorf("collection name is required")
	}
	if len(sources) == 0 {
		report.Success = true
		return report, nil
	}

	items, err := s.buildItems(sources)
	if err != nil {
		return report, err
	}

	for start := 0; start < len(items); start += s.batchSize {
		end := start + s.batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		if err := s.embedChunk(ctx, chunk); err != nil {
			return report, s.partial(report.Inserted, fmt.Errorf("embed chunk: %w", err))
		}

		if err := s.store.Add(ctx, collection, chunk); err != nil {
			return report, s.partial(report.Inserted, fmt.Errorf("store add: %w", err))
		}

		report.Inserted += len(chunk)
		metrics.IngestedDocumentsTotal.Add(float64(len(chunk)))
	}

	report.Success = true
	s.logger.Info("Ingested documents",
		zap.String("collection", collection),
		zap.Int("count", report.Inserted),
	)
	return report, nil
}

// buildItems assigns IDs, stamps added_at, and validates each document
// (non-empty content, size bound) before anything touches the store. IDs are
// resolved against the current batch only; the store is not consulted for
// existing IDs.
func (s *Service) buildItems(sources []Source) ([]store.Item, error) {
	addedAt := s.now().UTC().Format(time.RFC3339)
	seen := make(map[string]bool, len(sources))
	items := make([]store.Item, len(sources))

	for i, src := range sources {
		base := StableID(src.Content, src.Meta)
		id := base
		for n := 1; seen[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		seen[id] = true

		meta := src.Meta.Clone()
		meta.Set(AddedAtKey, metadata.String(addedAt))

		doc, err := document.New(id, src.Content, meta)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		items[i] = store.Item{ID: doc.ID(), Content: doc.Content(), Meta: doc.Metadata()}
	}
	return items, nil
}

// embedChunk resolves embeddings for one chunk concurrently. The first
// failure cancels the remaining work and is returned; later failures from
// already-running workers are dropped.
func (s *Service) embedChunk(ctx context.Context, chunk []store.Item) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for i := range chunk {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		idx := i
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vec, embErr := s.cache.GetOrCompute(ctx, chunk[idx].ID, chunk[idx].Content)
			if embErr != nil {
				once.Do(func() {
					firstErr = embErr
					cancel()
				})
				return
			}
			chunk[idx].Vector = vec
		})
		if err != nil {
			wg.Done()
			once.Do(func() {
				firstErr = fmt.Errorf("submit embedding task: %w", err)
				cancel()
			})
			break
		}
	}

	wg.Wait()
	return firstErr
}

// partial wraps an error as a partial-failure report when documents were
// already submitted before the failure.
func (s *Service) partial(inserted int, err error) error {
	if inserted == 0 {
		return err
	}
	return domain.NewIngestPartial(inserted, err)
}

// StableID derives a document ID from content and ordered metadata.
// Two sources with identical content and identical metadata (same key
// order) hash to the same ID.
func StableID(content string, meta metadata.Metadata) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(meta.Canonical()))
	return hex.EncodeToString(h.Sum(nil))
}
