package document

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/ragdex/internal/domain/metadata"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxContentSize is the maximum document content size in bytes.
const MaxContentSize = 163840 // 160KB

// Document is the document aggregate (immutable value object).
// Documents are created once at ingestion; a changed document gets a new ID
// since the ID is a stable hash of content and metadata.
type Document struct {
	id         string
	content    string
	meta       metadata.Metadata
	vector     []float32
	collection string
}

// New validates and creates a Document.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Content: non-empty, max 160KB.
func New(id, content string, meta metadata.Metadata) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > 256 {
		return Document{}, fmt.Errorf("document ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID must be alphanumeric with underscores and hyphens")
	}
	if content == "" {
		return Document{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}

	return Document{id: id, content: content, meta: meta.Clone()}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id, content string, meta metadata.Metadata, vector []float32, collection string,
) Document {
	return Document{id: id, content: content, meta: meta, vector: vector, collection: collection}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Content returns the document text content.
func (d *Document) Content() string { return d.content }

// Metadata returns the ordered metadata fields.
func (d *Document) Metadata() metadata.Metadata { return d.meta }

// Vector returns the embedding vector.
func (d *Document) Vector() []float32 { return d.vector }

// Collection returns the owning collection name (empty before storage).
func (d *Document) Collection() string { return d.collection }
