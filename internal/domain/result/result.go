package result

import "github.com/kailas-cloud/ragdex/internal/domain/document"

// Scored is a single retrieval hit with its score breakdown.
// semantic and keyword scores are fixed at fusion time; the final score starts
// as the combined score and is adjusted by later pipeline stages.
type Scored struct {
	doc        document.Document
	semantic   float64
	keyword    float64
	combined   float64
	multiplier float64
	final      float64
}

// New creates a scored result with the personalization multiplier at 1.0 and
// the final score equal to the combined score.
func New(doc document.Document, semantic, keyword, combined float64) Scored {
	return Scored{
		doc:        doc,
		semantic:   semantic,
		keyword:    keyword,
		combined:   combined,
		multiplier: 1.0,
		final:      combined,
	}
}

// Document returns the underlying document.
func (s *Scored) Document() document.Document { return s.doc }

// SemanticScore returns 1 - cosine distance.
func (s *Scored) SemanticScore() float64 { return s.semantic }

// KeywordScore returns the query-term overlap fraction.
func (s *Scored) KeywordScore() float64 { return s.keyword }

// CombinedScore returns the linear fusion of semantic and keyword scores.
func (s *Scored) CombinedScore() float64 { return s.combined }

// Multiplier returns the accumulated personalization multiplier.
func (s *Scored) Multiplier() float64 { return s.multiplier }

// FinalScore returns the score used for ranking.
func (s *Scored) FinalScore() float64 { return s.final }

// Boost multiplies the final score. Boosts compose multiplicatively and are
// never clamped; only relative order matters downstream.
func (s *Scored) Boost(m float64) {
	s.multiplier *= m
	s.final = s.combined * s.multiplier
}
