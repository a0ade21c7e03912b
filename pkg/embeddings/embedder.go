// Package embeddings turns questions into vectors for page chunk retrieval.
// The ollama and openai subpackages implement Embedder; embeddings/utils
// picks one from the [embedding] config table.
package embeddings

import "context"

// Embedder vectorizes one text per call. The searcher embeds each standalone
// query once, and the health check embeds a fixed string. Failures wrap
// vector.ErrEmbedding so retrieval can treat them as transient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases idle HTTP connections.
	Close() error
}
