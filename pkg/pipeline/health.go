package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	componentEmbedding   = "embedding"
	componentVectorStore = "vector_store"
	componentImages      = "images"
)

// ComponentHealth is the probe outcome of one external service.
type ComponentHealth struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Health summarizes the external services the pipeline depends on.
type Health struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Stats is a snapshot of the pipeline's runtime state.
type Stats struct {
	Config       Config `json:"config"`
	CacheEntries int    `json:"cache_entries"`
	RewriteMemo  int    `json:"rewrite_memo"`
	ImageMemo    int    `json:"image_memo"`
}

type embedderChecker interface {
	CheckEmbedder(ctx context.Context) error
}

type storeChecker interface {
	CheckStore(ctx context.Context) error
}

type checker interface {
	Check(ctx context.Context) error
}

type memoSizer interface {
	MemoLen() int
}

// Check probes the embedding service, vector store and image store
// concurrently. Retrieval outages make the pipeline unhealthy; an image
// store outage only degrades it.
func (o *Orchestrator) Check(ctx context.Context) Health {
	probes := map[string]func(context.Context) error{}
	if c, ok := o.deps.Searcher.(embedderChecker); ok {
		probes[componentEmbedding] = c.CheckEmbedder
	}
	if c, ok := o.deps.Searcher.(storeChecker); ok {
		probes[componentVectorStore] = c.CheckStore
	}
	if c, ok := o.deps.Enricher.(checker); ok && o.Config().EnableImageFetching {
		probes[componentImages] = c.Check
	}

	var (
		mu         sync.Mutex
		components = make(map[string]ComponentHealth, len(probes))
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, probe := range probes {
		g.Go(func() error {
			start := time.Now()
			err := probe(gctx)

			ch := ComponentHealth{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				ch.Status = StatusUnhealthy
				ch.Error = err.Error()
			}

			mu.Lock()
			components[name] = ch
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	h := Health{Status: StatusHealthy, Timestamp: time.Now().UTC(), Components: components}
	for name, ch := range components {
		if ch.Status == StatusHealthy {
			continue
		}
		if name == componentImages {
			if h.Status == StatusHealthy {
				h.Status = StatusDegraded
			}
			continue
		}
		h.Status = StatusUnhealthy
	}

	return h
}

// Stats reports the config and cache sizes.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Config:       o.Config(),
		CacheEntries: o.cache.Len(),
	}
	if m, ok := o.deps.Transformer.(memoSizer); ok {
		s.RewriteMemo = m.MemoLen()
	}
	if m, ok := o.deps.Enricher.(memoSizer); ok {
		s.ImageMemo = m.MemoLen()
	}
	return s
}
