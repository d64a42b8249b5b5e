// Package chi exposes the retrieval engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

const maxIngestBatch = 1000

// StoreAdmin covers the store operations exposed over HTTP besides search.
type StoreAdmin interface {
	Count(ctx context.Context, collection string) (int, error)
	Delete(ctx context.Context, collection, id string) error
	Collections(ctx context.Context) ([]string, error)
}

// Pinger reports backend liveness. Optional; nil means always healthy.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	search        *retrieval.Service
	ingestor      *ingest.Service
	admin         StoreAdmin
	pinger        Pinger
	defaults      query.ScoringConfig
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. pinger may be nil.
func NewServer(
	search *retrieval.Service,
	ingestor *ingest.Service,
	admin StoreAdmin,
	pinger Pinger,
	defaults query.ScoringConfig,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:   search,
		ingestor: ingestor,
		admin:    admin,
		pinger:   pinger,
		defaults: defaults,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"),
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, "collection_not_found"),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, "generation_provider_error"),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"),
	}
	return s
}

// Routes returns the API route tree, to be mounted under /api/v1.
func (s *Server) Routes() http.Handler {
	r := chirouter.NewRouter()
	r.Post("/search", s.handleSearch)
	r.Get("/collections", s.handleListCollections)
	r.Post("/collections/{collection}/documents", s.handleIngest)
	r.Get("/collections/{collection}/count", s.handleCount)
	r.Delete("/collections/{collection}/documents/{id}", s.handleDeleteDocument)
	return r
}

// handleSearch handles POST /search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	filter, err := filterFromJSON(req.Filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	q, err := query.New(req.Query, req.Collections, filter, req.Limit, s.scoringFromRequest(&req))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results, err := s.search.Search(r.Context(), &q, req.User.toDomain())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i := range results {
		items[i] = searchResultToDTO(&results[i])
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

// handleIngest handles POST /collections/{collection}/documents.
// Partial failures come back as success=false with the inserted count; the
// response status is 200 either way so the caller can see how far it got.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	collection := chirouter.URLParam(r, "collection")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > maxIngestBatch {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"documents count must be between 1 and 1000")
		return
	}

	sources := make([]ingest.Source, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d.Content == "" {
			writeError(w, http.StatusBadRequest, "validation_failed",
				"document content is required")
			return
		}
		meta, err := metadataFromJSON(d.Metadata)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		sources = append(sources, ingest.Source{Content: d.Content, Meta: meta})
	}

	report, err := s.ingestor.Ingest(r.Context(), collection, sources)
	if err != nil {
		var partial *domain.IngestPartialError
		if !errors.As(err, &partial) {
			s.handleDomainError(w, err)
			return
		}
		s.logger.Warn("Partial ingest", zap.String("collection", collection), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, reportToDTO(report))
}

// handleListCollections handles GET /collections.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.admin.Collections(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionsResponse{Collections: names})
}

// handleCount handles GET /collections/{collection}/count.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	collection := chirouter.URLParam(r, "collection")
	count, err := s.admin.Count(r.Context(), collection)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Collection: collection, Count: count})
}

// handleDeleteDocument handles DELETE /collections/{collection}/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	collection := chirouter.URLParam(r, "collection")
	id := chirouter.URLParam(r, "id")
	if err := s.admin.Delete(r.Context(), collection, id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// scoringFromRequest merges the request's scoring overrides over the
// configured defaults.
func (s *Server) scoringFromRequest(req *searchRequest) query.ScoringConfig {
	scoring := s.defaults
	if req.SemanticWeight != nil {
		scoring.SemanticWeight = *req.SemanticWeight
	}
	if req.KeywordWeight != nil {
		scoring.KeywordWeight = *req.KeywordWeight
	}
	if req.UseMMR != nil {
		scoring.UseMMR = *req.UseMMR
	}
	if req.MMRLambda != nil {
		scoring.MMRLambda = *req.MMRLambda
	}
	if req.Rerank != nil {
		scoring.Rerank = *req.Rerank
	}
	if req.User != nil && !req.User.toDomain().IsZero() {
		scoring.UsePersonalization = true
	}
	return scoring
}

// filterFromJSON builds an equality filter from a flat JSON object, keys
// sorted for deterministic condition order.
func filterFromJSON(raw map[string]any) (query.Filter, error) {
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
		case float64:
			f = f.Where(k, metadata.Number(v))
		case bool:
			f = f.Where(k, metadata.Bool(v))
		default:
			return query.Filter{}, errors.New("filter values must be string, number, or bool")
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrCollectionNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler matching a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
