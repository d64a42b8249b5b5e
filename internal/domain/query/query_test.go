package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
)

func TestNew_Defaults(t *testing.T) {
	q, err := New("what is photosynthesis", nil, Filter{}, 0, ScoringConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit() != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit(), DefaultLimit)
	}
	sc := q.Scoring()
	if sc.SemanticWeight != DefaultSemanticWeight || sc.KeywordWeight != DefaultKeywordWeight {
		t.Errorf("weights = %g/%g", sc.SemanticWeight, sc.KeywordWeight)
	}
	if !sc.UseMMR || sc.MMRLambda != DefaultMMRLambda {
		t.Errorf("mmr = %v/%g", sc.UseMMR, sc.MMRLambda)
	}
	if q.CandidateK() != DefaultLimit*OverFetchFactor {
		t.Errorf("CandidateK = %d", q.CandidateK())
	}
}

func TestNew_EmptyText(t *testing.T) {
	_, err := New("", nil, Filter{}, 5, ScoringConfig{})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestNew_TextTooLong(t *testing.T) {
	_, err := New(strings.Repeat("q", MaxQueryLength+1), nil, Filter{}, 5, ScoringConfig{})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestNew_LimitClamped(t *testing.T) {
	q, err := New("text", nil, Filter{}, MaxLimit+50, ScoringConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit() != MaxLimit {
		t.Errorf("Limit = %d, want %d", q.Limit(), MaxLimit)
	}
}

func TestNew_InvalidScoring(t *testing.T) {
	bad := DefaultScoring()
	bad.MMRLambda = 1.5
	_, err := New("text", nil, Filter{}, 5, bad)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestNew_DedupesCollections(t *testing.T) {
	q, err := New("text", []string{"a", "b", "a", "c", "b"}, Filter{}, 5, ScoringConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := q.Collections()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("Collections = %v, want [a b c]", got)
	}
}

func TestFilter_Matches(t *testing.T) {
	var meta metadata.Metadata
	meta.Set("subject", metadata.String("math"))
	meta.Set("grade", metadata.Number(9))

	f := Filter{}.Where("subject", metadata.String("math"))
	if !f.Matches(meta) {
		t.Error("expected match on subject")
	}

	f = f.Where("grade", metadata.Number(9))
	if !f.Matches(meta) {
		t.Error("expected match on subject+grade")
	}

	f = f.Where("missing", metadata.Bool(true))
	if f.Matches(meta) {
		t.Error("expected no match with a missing key")
	}

	// kind mismatch: number 9 vs string "9"
	g := Filter{}.Where("grade", metadata.String("9"))
	if g.Matches(meta) {
		t.Error("expected kind-sensitive comparison")
	}
}

func TestFilter_WhereDoesNotMutateReceiver(t *testing.T) {
	base := Filter{}.Where("a", metadata.String("1"))
	_ = base.Where("b", metadata.String("2"))
	if len(base.Conditions()) != 1 {
		t.Fatalf("Where mutated receiver: %d conditions", len(base.Conditions()))
	}
}
