package retrieval

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain/profile"
	"github.com/kailas-cloud/ragdex/internal/domain/result"
)

const (
	subjectKey  = "subject"
	examTypeKey = "exam_type"

	weakSubjectBoost = 1.20
	examTargetBoost  = 1.10
)

// personalize boosts results matching the user's context and re-sorts by the
// adjusted final score. Matching is substring-based and case-insensitive: a
// weak subject "algebra" matches a document tagged "linear algebra". Boosts
// compose multiplicatively, so a document matching both a weak subject and the
// exam target gets x1.32. Scores are never clamped.
//
// The sort is stable: results untouched by any boost keep their relative
// order from the fusion stage.
func personalize(results []result.Scored, user profile.UserContext) []result.Scored {
	if user.IsZero() {
		return results
	}

	for i := range results {
		doc := results[i].Document()
		meta := doc.Metadata()

		if v, ok := meta.Get(subjectKey); ok {
			subject := strings.ToLower(v.String())
			for _, weak := range user.WeakSubjects {
				if weak == "" {
					continue
				}
				if strings.Contains(subject, strings.ToLower(weak)) {
					results[i].Boost(weakSubjectBoost)
					break
				}
			}
		}

		if user.ExamTarget != "" {
			if v, ok := meta.Get(examTypeKey); ok {
				if strings.Contains(strings.ToLower(v.String()), strings.ToLower(user.ExamTarget)) {
					results[i].Boost(examTargetBoost)
				}
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore() > results[j].FinalScore()
	})
	return results
}
