// Package search embeds a standalone query and retrieves the most similar
// page chunks from a vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/papercomputeco/folio/pkg/embeddings"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/vector"
)

const (
	defaultEmbedTimeout = 10 * time.Second
	defaultQueryTimeout = 10 * time.Second
	defaultRetryDelay   = 500 * time.Millisecond
	defaultMaxAttempts  = 2
)

var (
	// ErrNoCandidates is returned, wrapped in rag.ErrRetrievalUnavailable,
	// when the store has nothing for the query.
	ErrNoCandidates = errors.New("no candidates found")

	// ErrInvalidQuery is returned for empty queries and non-positive top-K.
	ErrInvalidQuery = errors.New("invalid search query")
)

// Config holds configuration for a Searcher.
type Config struct {
	Embedder embeddings.Embedder
	Driver   vector.Driver

	// EmbedTimeout bounds the embedding call of one attempt.
	EmbedTimeout time.Duration

	// QueryTimeout bounds the similarity query of one attempt.
	QueryTimeout time.Duration

	// RetryDelay is the pause before retrying a transient failure.
	RetryDelay time.Duration

	// MaxAttempts counts the first try. Defaults to 2 (one retry).
	MaxAttempts int

	Logger *slog.Logger
}

// Searcher runs one embedding call and one similarity query per request.
type Searcher struct {
	embedder     embeddings.Embedder
	driver       vector.Driver
	embedTimeout time.Duration
	queryTimeout time.Duration
	retryDelay   time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

// New builds a Searcher from cfg.
func New(cfg Config) (*Searcher, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Driver == nil {
		return nil, errors.New("vector driver is required")
	}

	s := &Searcher{
		embedder:     cfg.Embedder,
		driver:       cfg.Driver,
		embedTimeout: cfg.EmbedTimeout,
		queryTimeout: cfg.QueryTimeout,
		retryDelay:   cfg.RetryDelay,
		maxAttempts:  cfg.MaxAttempts,
		logger:       cfg.Logger,
	}
	if s.embedTimeout <= 0 {
		s.embedTimeout = defaultEmbedTimeout
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = defaultQueryTimeout
	}
	if s.retryDelay <= 0 {
		s.retryDelay = defaultRetryDelay
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}

	return s, nil
}

// Search returns at most topK candidates for query, best first. Transient
// failures are retried once; exhausted retries and empty results surface as
// rag.ErrRetrievalUnavailable.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (rag.CandidateSet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", ErrInvalidQuery, topK)
	}

	start := time.Now()
	attempts := 0

	results, err := backoff.Retry(ctx, func() ([]vector.QueryResult, error) {
		attempts++
		res, err := s.attempt(ctx, query, topK)
		if err != nil && !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("vector_search_retry", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("vector_search_failed",
			"error", err,
			"attempts", attempts,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: %w", rag.ErrRetrievalUnavailable, err)
	}

	candidates := toCandidates(results)
	candidates.SortBySimilarity()
	candidates = candidates.Top(topK)

	s.logger.Debug("vector_search_completed",
		"candidates", len(candidates),
		"attempts", attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %w", rag.ErrRetrievalUnavailable, ErrNoCandidates)
	}
	return candidates, nil
}

func (s *Searcher) attempt(ctx context.Context, query string, topK int) ([]vector.QueryResult, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	embedding, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		if errors.Is(err, vector.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", vector.ErrEmbedding, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.driver.Query(queryCtx, embedding, topK)
}

// retryable is false for rejected requests and for a caller that went away.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, vector.ErrInvalidRequest)
}

// CheckEmbedder embeds a short probe text.
func (s *Searcher) CheckEmbedder(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	_, err := s.embedder.Embed(ctx, "health check")
	return err
}

// CheckStore pings the vector store when the driver supports it.
func (s *Searcher) CheckStore(ctx context.Context) error {
	pinger, ok := s.driver.(vector.Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return pinger.Ping(ctx)
}

func toCandidates(results []vector.QueryResult) rag.CandidateSet {
	out := make(rag.CandidateSet, 0, len(results))
	for _, r := range results {
		out = append(out, rag.Chunk{
			ID:              r.ID,
			DocumentName:    r.DocumentName,
			PageNumber:      r.PageNumber,
			Content:         r.Content,
			Embedding:       r.Embedding,
			ImageURL:        r.ImageURL,
			SimilarityScore: r.Score,
			Metadata:        maps.Clone(r.Metadata),
		})
	}
	return out
}
