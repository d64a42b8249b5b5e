package retrieval

import (
	"math"

	"github.com/kailas-cloud/ragdex/internal/domain/result"
)

// selectMMR applies greedy Maximal Marginal Relevance selection over results
// already sorted by final score:
//
//	mmr(c) = lambda*final(c) - (1-lambda)*maxSim(c, selected)
//
// Lambda 1 is pure relevance, lambda 0 pure diversity. The top result always
// seeds the selection; afterwards each round picks the candidate with the
// highest MMR score. The strict ">" comparison keeps the earliest candidate on
// ties, so selection is deterministic for a fixed input order.
//
// A candidate without an embedding cannot be compared against the selected
// set: its similarity penalty is zero and its final score stands in as the MMR
// score. That is a degraded mode, not an error.
func selectMMR(results []result.Scored, limit int, lambda float64) []result.Scored {
	if len(results) == 0 || limit <= 0 {
		return []result.Scored{}
	}
	if limit > len(results) {
		limit = len(results)
	}

	selected := make([]result.Scored, 0, limit)
	selected = append(selected, results[0])

	remaining := make([]result.Scored, len(results)-1)
	copy(remaining, results[1:])

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i := range remaining {
			cand := &remaining[i]
			candDoc := cand.Document()
			vec := candDoc.Vector()

			var score float64
			if len(vec) == 0 {
				score = cand.FinalScore()
			} else {
				maxSim := 0.0
				for j := range selected {
					selDoc := selected[j].Document()
					sel := selDoc.Vector()
					if len(sel) == 0 {
						continue
					}
					if sim := cosineSimilarity(vec, sel); sim > maxSim {
						maxSim = sim
					}
				}
				score = lambda*cand.FinalScore() - (1-lambda)*maxSim
			}

			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
