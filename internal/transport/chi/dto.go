package chi

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
	"github.com/kailas-cloud/ragdex/internal/domain/profile"
	"github.com/kailas-cloud/ragdex/internal/domain/result"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
)

// searchRequest is the POST /search body.
type searchRequest struct {
	Query          string             `json:"query"`
	Collections    []string           `json:"collections,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Filter         map[string]any     `json:"filter,omitempty"`
	SemanticWeight *float64           `json:"semantic_weight,omitempty"`
	KeywordWeight  *float64           `json:"keyword_weight,omitempty"`
	UseMMR         *bool              `json:"use_mmr,omitempty"`
	MMRLambda      *float64           `json:"mmr_lambda,omitempty"`
	Rerank         *bool              `json:"rerank,omitempty"`
	User           *userContextParams `json:"user,omitempty"`
}

type userContextParams struct {
	WeakSubjects []string `json:"weak_subjects,omitempty"`
	ExamTarget   string   `json:"exam_target,omitempty"`
}

func (p *userContextParams) toDomain() profile.UserContext {
	if p == nil {
		return profile.UserContext{}
	}
	return profile.UserContext{
		WeakSubjects: p.WeakSubjects,
		ExamTarget:   p.ExamTarget,
	}
}

type searchResultItem struct {
	ID            string         `json:"id"`
	Collection    string         `json:"collection"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SemanticScore float64        `json:"semantic_score"`
	KeywordScore  float64        `json:"keyword_score"`
	CombinedScore float64        `json:"combined_score"`
	FinalScore    float64        `json:"final_score"`
}

type searchResponse struct {
	Items []searchResultItem `json:"items"`
	Total int                `json:"total"`
}

func searchResultToDTO(r *result.Scored) searchResultItem {
	doc := r.Document()
	return searchResultItem{
		ID:            doc.ID(),
		Collection:    doc.Collection(),
		Content:       doc.Content(),
		Metadata:      metadataToJSON(doc.Metadata()),
		SemanticScore: r.SemanticScore(),
		KeywordScore:  r.KeywordScore(),
		CombinedScore: r.CombinedScore(),
		FinalScore:    r.FinalScore(),
	}
}

// ingestRequest is the POST /collections/{collection}/documents body.
type ingestRequest struct {
	Documents []ingestItem `json:"documents"`
}

type ingestItem struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ingestResponse struct {
	Total    int  `json:"total"`
	Inserted int  `json:"inserted"`
	Success  bool `json:"success"`
}

func reportToDTO(rep ingest.Report) ingestResponse {
	return ingestResponse{Total: rep.Total, Inserted: rep.Inserted, Success: rep.Success}
}

type countResponse struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

type collectionsResponse struct {
	Collections []string `json:"collections"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// metadataFromJSON converts a decoded JSON object into ordered metadata.
// Go maps iterate in random order, so keys are sorted to make the result --
// and therefore content-hash ids -- deterministic for identical payloads.
func metadataFromJSON(raw map[string]any) (metadata.Metadata, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var meta metadata.Metadata
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			meta.Set(k, metadata.String(v))
		case float64:
			meta.Set(k, metadata.Number(v))
		case bool:
			meta.Set(k, metadata.Bool(v))
		default:
			return metadata.Metadata{}, fmt.Errorf("metadata key %q: unsupported value type %T", k, raw[k])
		}
	}
	return meta, nil
}

func metadataToJSON(meta metadata.Metadata) map[string]any {
	if meta.Len() == 0 {
		return nil
	}
	out := make(map[string]any, meta.Len())
	for _, f := range meta.Fields() {
		switch f.Value.ValueKind() {
		case metadata.KindNumber:
			out[f.Key] = f.Value.Num()
		case metadata.KindBool:
			out[f.Key] = f.Value.Truth()
		default:
			out[f.Key] = f.Value.Str()
		}
	}
	return out
}
