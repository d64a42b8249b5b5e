package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain/result"
)

const rerankSnippetLimit = 500

// rerank asks the generation model to reorder results by relevance to the
// query. The stage is advisory: any failure (provider error, unparseable
// reply, indices out of range) keeps the incoming order so that a flaky
// model can never make retrieval worse.
func (s *Service) rerank(ctx context.Context, queryText string, results []result.Scored) []result.Scored {
	if s.gen == nil || len(results) < 2 {
		return results
	}

	prompt := buildRerankPrompt(queryText, results)
	reply, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("Rerank generation failed, keeping fused order", zap.Error(err))
		return results
	}

	order, ok := parseRerankOrder(reply, len(results))
	if !ok {
		s.logger.Warn("Unparseable rerank reply, keeping fused order",
			zap.String("reply", reply))
		return results
	}

	reordered := make([]result.Scored, 0, len(results))
	for _, idx := range order {
		reordered = append(reordered, results[idx])
	}
	return reordered
}

func buildRerankPrompt(queryText string, results []result.Scored) string {
	var b strings.Builder
	b.WriteString("Rank the passages below by relevance to the query.\n")
	b.WriteString("Reply with the passage numbers in order, comma-separated, nothing else.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\n", queryText)
	for i := range results {
		doc := results[i].Document()
		snippet := doc.Content()
		if len(snippet) > rerankSnippetLimit {
			snippet = snippet[:rerankSnippetLimit]
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, snippet)
	}
	return b.String()
}

// parseRerankOrder extracts a permutation of [0, n) from a reply like
// "3, 1, 2". Replies that skip or repeat passages are rejected whole.
func parseRerankOrder(reply string, n int) ([]int, bool) {
	parts := strings.Split(strings.TrimSpace(reply), ",")
	if len(parts) != n {
		return nil, false
	}
	order := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 1 || v > n || seen[v] {
			return nil, false
		}
		seen[v] = true
		order = append(order, v-1)
	}
	return order, true
}
