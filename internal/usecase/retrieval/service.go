package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/profile"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/domain/result"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Stage labels the pipeline step a search run last completed. It is carried
// in logs and metrics so a failed run can be traced to the step that broke.
type Stage string

const (
	StageReceived     Stage = "received"
	StageEmbedded     Stage = "embedded"
	StageSearched     Stage = "searched"
	StagePersonalized Stage = "personalized"
	StageDiversified  Stage = "diversified"
	StageReranked     Stage = "reranked"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Service runs the retrieval pipeline: embed the query, fan out across
// collections, fuse scores, then optionally personalize, diversify, and
// rerank. Each run either completes every enabled stage or fails whole; a
// partial result list is never returned.
type Service struct {
	store  Store
	cache  Cache
	gen    domain.Generator
	logger *zap.Logger
}

// New creates a retrieval service. gen may be nil; the rerank stage is then
// skipped regardless of scoring config.
func New(store Store, cache Cache, gen domain.Generator, logger *zap.Logger) *Service {
	return &Service{store: store, cache: cache, gen: gen, logger: logger}
}

// Search executes the pipeline for one query. The returned slice is sorted by
// final score (or MMR selection order when diversification is on) and holds
// at most q.Limit() results. On error the result list is always nil.
func (s *Service) Search(
	ctx context.Context, q *query.Query, user profile.UserContext,
) ([]result.Scored, error) {
	start := time.Now()
	stage := StageReceived

	fail := func(err error) ([]result.Scored, error) {
		metrics.SearchesTotal.WithLabelValues(string(StageFailed)).Inc()
		metrics.SearchDuration.WithLabelValues(string(StageFailed)).Observe(time.Since(start).Seconds())
		s.logger.Error("Search pipeline failed",
			zap.String("stage", string(stage)),
			zap.Error(err))
		return nil, err
	}

	// The query text itself is the cache key, so repeated queries and
	// documents ingested with identical content share one embedding.
	queryVec, err := s.cache.GetOrCompute(ctx, q.Text(), q.Text())
	if err != nil {
		return fail(fmt.Errorf("embed query: %w", err))
	}
	stage = StageEmbedded

	results, err := s.searchCollections(ctx, q, queryVec)
	if err != nil {
		return fail(fmt.Errorf("search collections: %w", err))
	}
	stage = StageSearched

	scoring := q.Scoring()

	if scoring.UsePersonalization && !user.IsZero() {
		results = personalize(results, user)
		stage = StagePersonalized
	}

	if scoring.UseMMR {
		results = selectMMR(results, q.Limit(), scoring.MMRLambda)
		stage = StageDiversified
	} else if len(results) > q.Limit() {
		results = results[:q.Limit()]
	}

	if scoring.Rerank && s.gen != nil {
		results = s.rerank(ctx, q.Text(), results)
		stage = StageReranked
	}

	metrics.SearchesTotal.WithLabelValues(string(StageDone)).Inc()
	metrics.SearchDuration.WithLabelValues(string(StageDone)).Observe(time.Since(start).Seconds())
	s.logger.Debug("Search pipeline done",
		zap.String("query", q.Text()),
		zap.Int("results", len(results)),
		zap.String("last_stage", string(stage)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}
