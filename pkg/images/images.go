// Package images attaches page image URLs to retrieved chunks by probing an
// object store. Enrichment never fails a request: missing or unreachable
// images only leave ImageURL empty.
package images

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/folio/pkg/cache"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/rag"
)

const (
	defaultMemoTTL     = 10 * time.Minute
	defaultConcurrency = 8
)

// Key is the object key of a document page image.
func Key(documentName string, pageNumber int) string {
	return fmt.Sprintf("%s_page_%d", documentName, pageNumber)
}

// Config holds configuration for a Fetcher.
type Config struct {
	Store ObjectStore

	// MemoTTL is how long probe outcomes are remembered. Defaults to 10m.
	MemoTTL time.Duration

	// Concurrency bounds parallel probes.
	Concurrency int

	Logger *slog.Logger
}

// Fetcher enriches candidates with verified page image URLs.
type Fetcher struct {
	store       ObjectStore
	memo        *cache.Store[bool]
	concurrency int
	logger      *slog.Logger
}

// New builds a Fetcher. A nil store is allowed and yields no images.
func New(cfg Config) *Fetcher {
	f := &Fetcher{
		store:       cfg.Store,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	ttl := cfg.MemoTTL
	if ttl <= 0 {
		ttl = defaultMemoTTL
	}
	f.memo = cache.New[bool](ttl, 0)
	if f.concurrency <= 0 {
		f.concurrency = defaultConcurrency
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}
	return f
}

// Enrich returns a copy of candidates where each chunk's ImageURL is set when
// its page image exists and cleared otherwise. Order is preserved.
func (f *Fetcher) Enrich(ctx context.Context, candidates rag.CandidateSet) rag.CandidateSet {
	out := candidates.Clone()
	if len(out) == 0 {
		return out
	}
	if f.store == nil {
		for i := range out {
			out[i].ImageURL = ""
		}
		return out
	}

	start := time.Now()
	var failures, found atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i := range out {
		g.Go(func() error {
			key := Key(out[i].DocumentName, out[i].PageNumber)
			exists, err := f.exists(gctx, key)
			if err != nil {
				failures.Add(1)
				f.logger.Debug("image_probe_failed", "key", key, "error", err)
				out[i].ImageURL = ""
				return nil
			}
			if exists {
				found.Add(1)
				out[i].ImageURL = f.store.URL(key)
			} else {
				out[i].ImageURL = ""
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failures.Load(); n > 0 {
		f.logger.Warn("image_enrichment_degraded",
			"error", rag.ErrEnrichmentDegraded,
			"failed", n,
			"total", len(out),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	f.logger.Debug("image_enrichment_completed",
		"found", found.Load(),
		"total", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return out
}

// exists consults the memo before probing. Only definitive answers are
// remembered.
func (f *Fetcher) exists(ctx context.Context, key string) (bool, error) {
	if v, ok := f.memo.Get(key); ok {
		return v, nil
	}
	exists, err := f.store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	f.memo.Set(key, exists)
	return exists, nil
}

// MemoLen is the number of remembered probe outcomes.
func (f *Fetcher) MemoLen() int {
	return f.memo.Len()
}

// Check pings the store when it supports pinging.
func (f *Fetcher) Check(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	if p, ok := f.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
