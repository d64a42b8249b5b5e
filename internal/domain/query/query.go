package query

import (
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
)

// Search parameter limits and defaults.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 5
	MaxLimit       = 100

	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
	DefaultMMRLambda      = 0.7

	// OverFetchFactor is how many candidates per collection are requested
	// relative to the limit. Downstream re-ranking and diversity selection
	// can only narrow the candidate set, never widen it.
	OverFetchFactor = 2
)

// ScoringConfig controls score fusion and the optional post-fusion stages.
// Weights need not sum to 1; the fusion formula is a plain linear combination.
type ScoringConfig struct {
	SemanticWeight     float64
	KeywordWeight      float64
	UsePersonalization bool
	UseMMR             bool
	MMRLambda          float64
	Rerank             bool
}

// DefaultScoring returns the standard scoring configuration.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		SemanticWeight: DefaultSemanticWeight,
		KeywordWeight:  DefaultKeywordWeight,
		UseMMR:         true,
		MMRLambda:      DefaultMMRLambda,
	}
}

// Validate checks weight and lambda ranges.
func (c ScoringConfig) Validate() error {
	if c.SemanticWeight < 0 {
		return fmt.Errorf("semantic_weight must be >= 0")
	}
	if c.KeywordWeight < 0 {
		return fmt.Errorf("keyword_weight must be >= 0")
	}
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		return fmt.Errorf("mmr_lambda must be between 0 and 1")
	}
	return nil
}

// Condition is a single metadata equality constraint.
type Condition struct {
	key   string
	value metadata.Value
}

// Key returns the metadata key the condition applies to.
func (c Condition) Key() string { return c.key }

// Value returns the required value.
func (c Condition) Value() metadata.Value { return c.value }

// Filter is an ordered conjunction of metadata equality constraints.
type Filter struct {
	conds []Condition
}

// Where appends an equality condition and returns the extended filter.
func (f Filter) Where(key string, v metadata.Value) Filter {
	return Filter{conds: append(append([]Condition(nil), f.conds...), Condition{key: key, value: v})}
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return len(f.conds) == 0 }

// Conditions returns the conditions in declaration order.
func (f Filter) Conditions() []Condition { return f.conds }

// Matches reports whether all conditions hold for the given metadata.
func (f Filter) Matches(meta metadata.Metadata) bool {
	for _, c := range f.conds {
		v, ok := meta.Get(c.key)
		if !ok || !v.Equal(c.value) {
			return false
		}
	}
	return true
}

// Query is a validated retrieval request.
type Query struct {
	text        string
	collections []string
	filter      Filter
	limit       int
	scoring     ScoringConfig
}

// New validates and normalizes query parameters.
// Defaults: limit=5, scoring=DefaultScoring(). Empty collections means all.
// Target collections form an ordered set: duplicates are dropped, first
// occurrence wins.
func New(
	text string, collections []string, filter Filter, limit int, scoring ScoringConfig,
) (Query, error) {
	if text == "" {
		return Query{}, fmt.Errorf("query text is required: %w", domain.ErrInvalidQuery)
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if scoring == (ScoringConfig{}) {
		scoring = DefaultScoring()
	}
	if err := scoring.Validate(); err != nil {
		return Query{}, fmt.Errorf("%s: %w", err.Error(), domain.ErrInvalidQuery)
	}

	return Query{
		text:        text,
		collections: dedupe(collections),
		filter:      filter,
		limit:       limit,
		scoring:     scoring,
	}, nil
}

// Text returns the raw query text.
func (q *Query) Text() string { return q.text }

// Collections returns the ordered target collections (empty = all).
func (q *Query) Collections() []string { return q.collections }

// Filter returns the metadata pre-filter.
func (q *Query) Filter() Filter { return q.filter }

// Limit returns the maximum results to return.
func (q *Query) Limit() int { return q.limit }

// Scoring returns the scoring configuration.
func (q *Query) Scoring() ScoringConfig { return q.scoring }

// CandidateK returns the per-collection candidate count (over-fetch).
func (q *Query) CandidateK() int { return q.limit * OverFetchFactor }

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
