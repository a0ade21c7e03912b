package rag

import "errors"

// Error taxonomy shared by the pipeline stages. Fatal kinds abort a request;
// the others are recovered where they happen and only logged.
var (
	// ErrRetrievalUnavailable means no candidates could be retrieved, either
	// because the embedding service or vector store failed, or because the
	// store returned nothing.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrEnrichmentDegraded means page images could not be verified.
	ErrEnrichmentDegraded = errors.New("image enrichment degraded")

	// ErrRerankParseFailed means the judge model output could not be parsed.
	ErrRerankParseFailed = errors.New("rerank output could not be parsed")

	// ErrSynthesisFailed means the answer model failed or returned nothing.
	ErrSynthesisFailed = errors.New("answer synthesis failed")

	// ErrTransformFailed means the rewrite model failed.
	ErrTransformFailed = errors.New("query transform failed")
)
