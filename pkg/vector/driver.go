// Package vector provides interfaces and implementations for chunk storage and
// similarity search.
package vector

import "context"

// Document is one indexed page chunk with its embedding.
type Document struct {
	// ID is the unique chunk identifier assigned at ingestion.
	ID string

	// DocumentName is the name of the source document.
	DocumentName string

	// PageNumber is the 1-based page the chunk was extracted from.
	PageNumber int

	// Content is the extracted page text.
	Content string

	// ImageURL is an optional pre-resolved page image reference.
	ImageURL string

	// Metadata holds free-form string attributes written at ingestion.
	Metadata map[string]string

	// Embedding is the vector representation of the content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of chunk embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	// Results are ordered by descending score.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Metadata keys used by drivers that persist chunk fields as flat metadata.
const (
	MetaDocumentName = "document_name"
	MetaPageNumber   = "page_number"
	MetaImageURL     = "image_url"
	MetaChunkID      = "chunk_id"
)

// Pinger is implemented by drivers that can cheaply verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
