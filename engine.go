// Package ragdex is an embeddable hybrid retrieval engine: vector similarity
// fused with lexical overlap, optional personalization boosts, and MMR
// diversification, backed by an in-process or Redis vector store.
package ragdex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/domain/profile"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	"github.com/kailas-cloud/ragdex/internal/store"
	memstore "github.com/kailas-cloud/ragdex/internal/store/memory"
	redisstore "github.com/kailas-cloud/ragdex/internal/store/redis"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Engine is the ragdex SDK entry point.
type Engine struct {
	store    store.CollectionStore
	cache    *embcache.Cache
	retrieve *retrieval.Service
	ingestor *ingest.Service
	closeFn  func()
	defaults query.ScoringConfig
}

// Doc is a document to ingest. The id is derived from content and metadata;
// ingesting the same payload twice overwrites rather than duplicates.
type Doc struct {
	Content  string
	Metadata map[string]any
}

// IngestReport summarizes one ingest call.
type IngestReport struct {
	Total    int
	Inserted int
	Success  bool
}

// SearchOptions configures a search. The zero value searches all collections
// with default scoring.
type SearchOptions struct {
	Collections []string
	Limit       int
	Filter      map[string]any

	// Scoring overrides; nil keeps the engine default.
	SemanticWeight *float64
	KeywordWeight  *float64
	UseMMR         *bool
	MMRLambda      *float64
	Rerank         bool

	// Personalization context; zero value disables the stage.
	WeakSubjects []string
	ExamTarget   string
}

// SearchResult is a single hit with its score breakdown.
type SearchResult struct {
	ID            string
	Collection    string
	Content       string
	Metadata      map[string]any
	SemanticScore float64
	KeywordScore  float64
	CombinedScore float64
	FinalScore    float64
}

// New creates an Engine. An embedder is required; everything else has
// defaults (memory store, nop logger, standard scoring).
func New(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		driver:         "memory",
		semanticWeight: query.DefaultSemanticWeight,
		keywordWeight:  query.DefaultKeywordWeight,
		mmrLambda:      query.DefaultMMRLambda,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.embedder == nil {
		return nil, errors.New("ragdex: embedder required (use WithEmbedder)")
	}

	st, closeFn, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	cache := embcache.New(&embedderAdapter{inner: cfg.embedder}, metrics.EmbeddingCacheTotal)

	var gen domain.Generator
	if cfg.generator != nil {
		gen = &generatorAdapter{inner: cfg.generator}
	}

	ingestor, err := ingest.New(st, cache, cfg.logger)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, fmt.Errorf("ragdex: create ingestor: %w", err)
	}
	if cfg.batchSize > 0 {
		ingestor = ingestor.WithBatchSize(cfg.batchSize)
	}
	if cfg.workers > 0 {
		ingestor = ingestor.WithWorkers(cfg.workers)
	}

	defaults := query.DefaultScoring()
	defaults.SemanticWeight = cfg.semanticWeight
	defaults.KeywordWeight = cfg.keywordWeight
	defaults.MMRLambda = cfg.mmrLambda
	if cfg.useMMR != nil {
		defaults.UseMMR = *cfg.useMMR
	}

	return &Engine{
		store:    st,
		cache:    cache,
		retrieve: retrieval.New(st, cache, gen, cfg.logger),
		ingestor: ingestor,
		closeFn:  closeFn,
		defaults: defaults,
	}, nil
}

func createStore(cfg *engineConfig) (store.CollectionStore, func(), error) {
	switch cfg.driver {
	case "memory":
		return memstore.New(), nil, nil
	case "redis":
		s, err := redisstore.NewStore(redisstore.Config{
			Addrs:     cfg.addrs,
			Password:  cfg.password,
			KeyPrefix: cfg.keyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ragdex: create redis store: %w", err)
		}
		if err := s.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("ragdex: redis not ready: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("ragdex: unknown driver %q", cfg.driver)
	}
}

// Close releases store connections and the ingest worker pool.
func (e *Engine) Close() {
	e.ingestor.Close()
	if e.closeFn != nil {
		e.closeFn()
	}
}

// Ingest embeds and stores documents in a collection, creating it on first
// write. On partial failure the report carries the inserted count and the
// returned error wraps the cause.
func (e *Engine) Ingest(ctx context.Context, collection string, docs []Doc) (IngestReport, error) {
	sources := make([]ingest.Source, 0, len(docs))
	for _, d := range docs {
		meta, err := mapToMetadata(d.Metadata)
		if err != nil {
			return IngestReport{Total: len(docs)}, fmt.Errorf("ingest: %w", err)
		}
		sources = append(sources, ingest.Source{Content: d.Content, Meta: meta})
	}

	rep, err := e.ingestor.Ingest(ctx, collection, sources)
	out := IngestReport{Total: rep.Total, Inserted: rep.Inserted, Success: rep.Success}
	if err != nil {
		return out, fmt.Errorf("ingest: %w", err)
	}
	return out, nil
}

// Search runs the retrieval pipeline for a query.
func (e *Engine) Search(ctx context.Context, text string, opts *SearchOptions) ([]SearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}

	filter, err := mapToFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	user := profile.UserContext{
		WeakSubjects: opts.WeakSubjects,
		ExamTarget:   opts.ExamTarget,
	}

	scoring := e.defaults
	if opts.SemanticWeight != nil {
		scoring.SemanticWeight = *opts.SemanticWeight
	}
	if opts.KeywordWeight != nil {
		scoring.KeywordWeight = *opts.KeywordWeight
	}
	if opts.UseMMR != nil {
		scoring.UseMMR = *opts.UseMMR
	}
	if opts.MMRLambda != nil {
		scoring.MMRLambda = *opts.MMRLambda
	}
	scoring.Rerank = opts.Rerank
	scoring.UsePersonalization = !user.IsZero()

	q, err := query.New(text, opts.Collections, filter, opts.Limit, scoring)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results, err := e.retrieve.Search(ctx, &q, user)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i := range results {
		doc := results[i].Document()
		out[i] = SearchResult{
			ID:            doc.ID(),
			Collection:    doc.Collection(),
			Content:       doc.Content(),
			Metadata:      metadataToMap(doc.Metadata()),
			SemanticScore: results[i].SemanticScore(),
			KeywordScore:  results[i].KeywordScore(),
			CombinedScore: results[i].CombinedScore(),
			FinalScore:    results[i].FinalScore(),
		}
	}
	return out, nil
}

// Count returns the number of documents in a collection.
func (e *Engine) Count(ctx context.Context, collection string) (int, error) {
	n, err := e.store.Count(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Delete removes one document by id.
func (e *Engine) Delete(ctx context.Context, collection, id string) error {
	if err := e.store.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Collections lists known collections in lexical order.
func (e *Engine) Collections(ctx context.Context) ([]string, error) {
	names, err := e.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("collections: %w", err)
	}
	return names, nil
}

// CacheLen reports the number of embeddings held by the in-process cache.
func (e *Engine) CacheLen() int { return e.cache.Len() }

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return a.inner.Generate(ctx, prompt)
}

// mapToMetadata converts a metadata map into the ordered internal form, keys
// sorted so content-hash ids come out the same for identical payloads.
func mapToMetadata(raw map[string]any) (metadata.Metadata, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var meta metadata.Metadata
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			meta.Set(k, metadata.String(v))
		case bool:
			meta.Set(k, metadata.Bool(v))
		case float64:
			meta.Set(k, metadata.Number(v))
		case int:
			meta.Set(k, metadata.Number(float64(v)))
		default:
			return metadata.Metadata{}, fmt.Errorf("metadata key %q: unsupported value type %T", k, raw[k])
		}
	}
	return meta, nil
}

func metadataToMap(meta metadata.Metadata) map[string]any {
	if meta.Len() == 0 {
		return nil
	}
	out := make(map[string]any, meta.Len())
	for _, f := range meta.Fields() {
		switch f.Value.ValueKind() {
		case metadata.KindNumber:
			out[f.Key] = f.Value.Num()
		case metadata.KindBool:
			out[f.Key] = f.Value.Truth()
		default:
			out[f.Key] = f.Value.Str()
		}
	}
	return out
}

func mapToFilter(raw map[string]any) (query.Filter, error) {
	var f query.Filter
	if len(raw) == 0 {
		return f, nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			f = f.Where(k, metadata.String(v))
		case bool:
			f = f.Where(k, metadata.Bool(v))
		case float64:
			f = f.Where(k, metadata.Number(v))
		case int:
			f = f.Where(k, metadata.Number(float64(v)))
		default:
			return query.Filter{}, fmt.Errorf("filter key %q: values must be string, number, or bool", k)
		}
	}
	return f, nil
}
