// Package redis implements store.CollectionStore on Redis 8+ via rueidis.
// Each document is a hash under "<prefix><collection>:<id>"; every collection
// gets its own FT index (HNSW, cosine) created lazily on first Add. Known
// collections are tracked in a registry set so the engine can enumerate them.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/store"
)

// Compile-time check: Store implements store.CollectionStore.
var _ store.CollectionStore = (*Store)(nil)

// DefaultKeyPrefix namespaces all ragdex keys.
const DefaultKeyPrefix = "ragdex:"

// Reserved hash field names (everything else is a metadata field).
// scoreField is the alias assigned to the KNN distance in FT.SEARCH queries;
// without the explicit AS clause the server would derive the name from the
// vector field ("____vector_score" here) and the parser would miss it.
const (
	fieldContent = "__content"
	fieldVector  = "__vector"
	scoreField   = "__vector_score"
)

// HNSW index construction parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	HNSW      HNSWConfig
}

// Store implements store.CollectionStore via rueidis for Redis 8+.
type Store struct {
	client rueidis.Client
	prefix string
	hnsw   HNSWConfig

	mu      sync.Mutex
	indexed map[string]bool // collections whose FT index was confirmed
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &Store{
		client:  client,
		prefix:  prefix,
		hnsw:    cfg.HNSW,
		indexed: make(map[string]bool),
	}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Add stores items as hashes and registers the collection, creating its FT
// index on first use. The index dimensionality is taken from the first
// item's vector.
func (s *Store) Add(ctx context.Context, collection string, items []store.Item) error {
	if collection == "" {
		return &store.Error{Op: "add", Err: fmt.Errorf("collection name is required")}
	}
	if len(items) == 0 {
		return nil
	}

	if err := s.ensureIndex(ctx, collection, len(items[0].Vector)); err != nil {
		return err
	}

	cmds := make([]rueidis.Completed, 0, len(items)+1)
	for _, item := range items {
		cmd := s.client.B().Hset().Key(s.docKey(collection, item.ID)).FieldValue()
		for k, v := range buildHashFields(item) {
			cmd = cmd.FieldValue(k, v)
		}
		cmds = append(cmds, cmd.Build())
	}
	cmds = append(cmds, s.client.B().Sadd().Key(s.registryKey()).Member(collection).Build())

	results := s.client.DoMulti(ctx, cmds...)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return &store.Error{Op: "add", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
		}
	}
	return nil
}

// Query runs a KNN search via FT.SEARCH and post-filters metadata equality
// constraints client-side (metadata fields are schemaless, so they cannot be
// expressed as index pre-filters). When a filter is present the store
// over-fetches to keep k results likely after filtering.
func (s *Store) Query(
	ctx context.Context, collection string, vector []float32, k int, filter query.Filter,
) ([]store.Hit, error) {
	if k <= 0 {
		return nil, &store.Error{Op: "query", Err: fmt.Errorf("k must be positive")}
	}

	known, err := s.isRegistered(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, &store.Error{Op: "query", Err: fmt.Errorf("%q: %w", collection, domain.ErrCollectionNotFound)}
	}

	fetchK := k
	if !filter.IsEmpty() {
		fetchK = k * 4
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB AS %s]", fetchK, fieldVector, scoreField)
	args := []string{
		s.indexName(collection), queryStr,
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"LIMIT", "0", strconv.Itoa(fetchK),
		"DIALECT", "2",
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, nil // registered but never indexed: empty collection
		}
		return nil, &store.Error{Op: "FT.SEARCH", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
	}

	hits, err := parseKNNResult(raw, s.docPrefix(collection))
	if err != nil {
		return nil, &store.Error{Op: "FT.SEARCH", Err: err}
	}

	// Reply order is not distance-ordered without SORTBY; sort here so the
	// truncation below keeps the nearest neighbors.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if !filter.IsEmpty() {
		kept := hits[:0]
		for _, h := range hits {
			if filter.Matches(h.Meta) {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns document count via FT.SEARCH with LIMIT 0 0.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	known, err := s.isRegistered(ctx, collection)
	if err != nil {
		return 0, err
	}
	if !known {
		return 0, &store.Error{Op: "count", Err: fmt.Errorf("%q: %w", collection, domain.ErrCollectionNotFound)}
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(s.indexName(collection), "*", "LIMIT", "0", "0").Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return 0, nil
		}
		return 0, &store.Error{Op: "FT.SEARCH", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, &store.Error{Op: "FT.SEARCH", Err: fmt.Errorf("parse count: %w", err)}
	}
	return int(total), nil
}

// Delete removes a document by ID.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	cmd := s.client.B().Del().Key(s.docKey(collection, id)).Build()
	deleted, err := s.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return &store.Error{Op: "DEL", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
	}
	if deleted == 0 {
		return &store.Error{Op: "DEL", Err: fmt.Errorf("%q: %w", id, domain.ErrDocumentNotFound)}
	}
	return nil
}

// Collections lists registered collection names in lexical order.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	cmd := s.client.B().Smembers().Key(s.registryKey()).Build()
	names, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &store.Error{Op: "SMEMBERS", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
	}
	sort.Strings(names)
	return names, nil
}

// ensureIndex creates the collection's FT index if it does not exist yet.
func (s *Store) ensureIndex(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	confirmed := s.indexed[collection]
	s.mu.Unlock()
	if confirmed {
		return nil
	}
	if dim <= 0 {
		return &store.Error{Op: "FT.CREATE", Err: fmt.Errorf("vector dimension must be positive")}
	}

	args := []string{
		s.indexName(collection),
		"ON", "HASH",
		"PREFIX", "1", s.docPrefix(collection),
		"SCHEMA",
		fieldContent, "TEXT",
	}
	args = append(args, buildVectorFieldArgs(dim, s.hnsw)...)

	cmd := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if !isRedisErr(err, "index already exists") {
			return &store.Error{Op: "FT.CREATE", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
		}
	}

	s.mu.Lock()
	s.indexed[collection] = true
	s.mu.Unlock()
	return nil
}

// isRegistered checks collection membership in the registry set.
func (s *Store) isRegistered(ctx context.Context, collection string) (bool, error) {
	cmd := s.client.B().Sismember().Key(s.registryKey()).Member(collection).Build()
	ok, err := s.client.Do(ctx, cmd).AsBool()
	if err != nil {
		return false, &store.Error{Op: "SISMEMBER", Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
	}
	return ok, nil
}

func (s *Store) registryKey() string { return s.prefix + "collections" }

func (s *Store) docPrefix(collection string) string {
	return s.prefix + collection + ":"
}

func (s *Store) docKey(collection, id string) string {
	return s.docPrefix(collection) + id
}

func (s *Store) indexName(collection string) string {
	return s.prefix + collection + ":idx"
}

func buildVectorFieldArgs(dim int, hnsw HNSWConfig) []string {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	}
	if hnsw.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(hnsw.M))
	}
	if hnsw.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(hnsw.EFConstruct))
	}

	args := make([]string, 0, 4+len(attrs))
	args = append(args, fieldVector, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	args = append(args, attrs...)
	return args
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
