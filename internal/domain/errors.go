package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrCollectionNotFound signals a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrStoreUnavailable signals a vector store failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals an LLM generation failure.
	ErrGenerationProviderError = errors.New("generation provider error")
)

// IngestPartialError reports an ingestion run that stored some documents
// before failing. Inserted counts documents confirmed by the store.
type IngestPartialError struct {
	Inserted int
	Err      error
}

func (e *IngestPartialError) Error() string {
	return fmt.Sprintf("ingest partial failure after %d documents: %s", e.Inserted, e.Err.Error())
}

func (e *IngestPartialError) Unwrap() error { return e.Err }

// NewIngestPartial creates a partial ingestion error.
func NewIngestPartial(inserted int, err error) error {
	return &IngestPartialError{Inserted: inserted, Err: err}
}
