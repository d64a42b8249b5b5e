package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/domain/result"
	"github.com/kailas-cloud/ragdex/internal/store"
)

// searchCollections fans the query out across the target collections, one
// goroutine per collection, and fuses semantic similarity with lexical
// overlap into a combined score.
//
// A failing collection contributes nothing (logged, not fatal); a cancelled
// context aborts the whole fan-out and discards partial results. Results are
// not deduplicated across collections: IDs are only unique within one.
func (s *Service) searchCollections(
	ctx context.Context, q *query.Query, queryVec []float32,
) ([]result.Scored, error) {
	collections := q.Collections()
	if len(collections) == 0 {
		all, err := s.store.Collections(ctx)
		if err != nil {
			return nil, err
		}
		collections = all
	}

	scoring := q.Scoring()
	var queryTerms map[string]bool
	if scoring.KeywordWeight > 0 {
		queryTerms = tokenize(q.Text())
	}

	perCollection := make([][]result.Scored, len(collections))
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range collections {
		g.Go(func() error {
			hits, err := s.store.Query(gctx, name, queryVec, q.CandidateK(), q.Filter())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("Collection query failed, skipping its contribution",
					zap.String("collection", name), zap.Error(err))
				return nil
			}
			perCollection[i] = scoreHits(name, hits, queryTerms, scoring)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in target-collection order, then sort: deterministic for
	// identical inputs regardless of goroutine scheduling.
	var merged []result.Scored
	for _, part := range perCollection {
		merged = append(merged, part...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CombinedScore() > merged[j].CombinedScore()
	})
	return merged, nil
}

// scoreHits converts raw hits into scored results.
// semantic = 1 - distance; keyword = |query terms ∩ content terms| / |query terms|;
// combined = semantic_weight*semantic + keyword_weight*keyword. Weights are a
// plain linear combination and need not sum to 1.
func scoreHits(
	collection string, hits []store.Hit, queryTerms map[string]bool, scoring query.ScoringConfig,
) []result.Scored {
	scored := make([]result.Scored, 0, len(hits))
	for _, h := range hits {
		semantic := 1 - h.Distance

		var keyword float64
		if queryTerms != nil {
			keyword = keywordScore(queryTerms, h.Content)
		}

		combined := scoring.SemanticWeight*semantic + scoring.KeywordWeight*keyword
		doc := document.Reconstruct(h.ID, h.Content, h.Meta, h.Vector, collection)
		scored = append(scored, result.New(doc, semantic, keyword, combined))
	}
	return scored
}

// keywordScore is the fraction of query terms present in the content.
// Returns 0 for a term-less query.
func keywordScore(queryTerms map[string]bool, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentTerms := tokenize(content)
	matched := 0
	for term := range queryTerms {
		if contentTerms[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// tokenize splits on whitespace, case-folded.
func tokenize(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		terms[w] = true
	}
	return terms
}
