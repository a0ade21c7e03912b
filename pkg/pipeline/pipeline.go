// Package pipeline orchestrates one answer request through rewrite, search,
// image enrichment, reranking and synthesis, with a response cache in front.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/folio/pkg/cache"
	"github.com/papercomputeco/folio/pkg/eventstream"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/rerank"
	"github.com/papercomputeco/folio/pkg/worker"
)

// Transformer rewrites follow-ups into standalone queries.
type Transformer interface {
	Transform(ctx context.Context, raw string, history rag.History) rag.StandaloneQuery
}

// Searcher retrieves candidates for a standalone query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (rag.CandidateSet, error)
}

// Enricher attaches page images to candidates.
type Enricher interface {
	Enrich(ctx context.Context, candidates rag.CandidateSet) rag.CandidateSet
}

// Reranker selects the candidates passed to synthesis.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates rag.CandidateSet, maxSelected int) rag.Selection
}

// Synthesizer writes the answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, selection rag.Selection, candidates rag.CandidateSet) (string, error)
}

// Enqueuer accepts answer events for asynchronous publishing.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// Deps are the stage implementations an Orchestrator drives.
type Deps struct {
	Transformer Transformer
	Searcher    Searcher
	Enricher    Enricher
	Reranker    Reranker
	Synthesizer Synthesizer

	// Events is optional.
	Events Enqueuer

	// CacheNamespace is mixed into every cache key, e.g. the model ids,
	// so answers from different models never collide.
	CacheNamespace string

	Logger *slog.Logger
}

// Request is one question entering the pipeline.
type Request struct {
	Query   string
	History rag.History

	// Config overrides the orchestrator's current config when set.
	Config *Config

	// SessionID is carried into answer events.
	SessionID string
}

// Orchestrator runs requests. It is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	config atomic.Pointer[Config]
	cache  *cache.Store[rag.AnswerResult]
	hooks  []StageHook
	logger *slog.Logger
}

// New builds an Orchestrator. Every stage dependency is required; disabled
// stages are switched off through Config.
func New(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Transformer == nil:
		return nil, errors.New("transformer is required")
	case deps.Searcher == nil:
		return nil, errors.New("searcher is required")
	case deps.Enricher == nil:
		return nil, errors.New("image enricher is required")
	case deps.Reranker == nil:
		return nil, errors.New("reranker is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("synthesizer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		deps:   deps,
		cache:  cache.New[rag.AnswerResult](DefaultCacheTTL, 0),
		logger: deps.Logger,
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	o.config.Store(&cfg)

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the current pipeline config.
func (o *Orchestrator) Config() Config {
	return *o.config.Load()
}

// SetConfig validates and swaps the config used by subsequent requests.
// In-flight requests keep the config they started with.
func (o *Orchestrator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.config.Store(&cfg)
	o.logger.Info("pipeline_config_updated",
		"max_candidates", cfg.MaxCandidates,
		"max_selected", cfg.MaxSelected,
		"enable_reranking", cfg.EnableReranking,
		"enable_image_fetching", cfg.EnableImageFetching,
		"cache_ttl", cfg.CacheTTL,
	)
	return nil
}

// FlushCache drops every cached answer.
func (o *Orchestrator) FlushCache() {
	o.cache.Flush()
}

// Answer runs req through the pipeline. Fatal failures are returned as
// *Error; degraded stages only show in the result.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*rag.AnswerResult, error) {
	run := &run{o: o, ctx: ctx, start: time.Now()}

	run.enter(StateIdle)

	cfg := o.Config()
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			return nil, run.fail(StateIdle, err)
		}
		cfg = *req.Config
	}
	if err := validateRequest(req); err != nil {
		return nil, run.fail(StateIdle, err)
	}

	history := req.History.Clone().Last(cfg.HistoryWindow)
	key := o.cacheKey(req.Query, history, cfg)

	if cfg.CacheTTL > 0 {
		if cached, ok := o.cache.Get(key); ok {
			run.enter(StateCacheHit)
			res := cached.Clone()
			res.CacheHit = true
			res.ElapsedSeconds = time.Since(run.start).Seconds()
			run.enter(StateDone)
			o.logger.Info("answer_cache_hit", "elapsed_ms", time.Since(run.start).Milliseconds())
			return &res, nil
		}
	}

	run.enter(StateTransforming)
	standalone := o.deps.Transformer.Transform(ctx, req.Query, history)
	if cerr := run.checkpoint(StateTransforming); cerr != nil {
		return nil, cerr
	}

	run.enter(StateSearching)
	candidates, err := o.deps.Searcher.Search(ctx, standalone.Text, cfg.MaxCandidates)
	if cerr := run.checkpoint(StateSearching); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, run.fail(StateSearching, err)
	}

	if cfg.EnableImageFetching {
		run.enter(StateEnriching)
		candidates = o.deps.Enricher.Enrich(ctx, candidates)
		if cerr := run.checkpoint(StateEnriching); cerr != nil {
			return nil, cerr
		}
	}

	var selection rag.Selection
	if cfg.EnableReranking {
		run.enter(StateReranking)
		selection = o.deps.Reranker.Rerank(ctx, standalone.Text, candidates, cfg.MaxSelected)
		if cerr := run.checkpoint(StateReranking); cerr != nil {
			return nil, cerr
		}
	} else {
		selection = rag.SelectTop(candidates, cfg.MaxSelected, rerank.DisabledJustification)
	}
	selection = bound(selection, candidates, cfg.MaxSelected)

	run.enter(StateSynthesizing)
	answer, err := o.deps.Synthesizer.Synthesize(ctx, standalone.Text, selection, candidates)
	if cerr := run.checkpoint(StateSynthesizing); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, run.fail(StateSynthesizing, err)
	}

	selected := selection.Chunks(candidates)
	pages := make([]rag.Page, len(selected))
	for i, c := range selected {
		pages[i] = c.Page()
	}

	res := rag.AnswerResult{
		AnswerText:      answer,
		SelectedPages:   pages,
		Justification:   selection.Justification,
		ElapsedSeconds:  time.Since(run.start).Seconds(),
		CacheHit:        false,
		StandaloneQuery: standalone,
		TotalCandidates: len(candidates),
	}

	if cfg.CacheTTL > 0 {
		o.cache.SetWithTTL(key, res.Clone(), cfg.CacheTTL)
	}
	if o.deps.Events != nil {
		o.deps.Events.Enqueue(worker.Job{
			Event: eventstream.NewAnswerCompletedEvent(req.SessionID, req.Query, &res, run.start),
		})
	}

	run.enter(StateDone)
	o.logger.Info("answer_completed",
		"was_rewritten", standalone.WasRewritten,
		"candidates", len(candidates),
		"selected", len(pages),
		"elapsed_ms", time.Since(run.start).Milliseconds(),
	)

	return &res, nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	for i, turn := range req.History {
		if err := validate.Struct(turn); err != nil {
			return fmt.Errorf("%w: history turn %d: %w", ErrInvalidRequest, i, err)
		}
	}
	return nil
}

// bound keeps only ids present in candidates, without duplicates, capped at
// maxSelected.
func bound(sel rag.Selection, candidates rag.CandidateSet, maxSelected int) rag.Selection {
	ids := make([]string, 0, min(len(sel.ChunkIDs), maxSelected))
	seen := make(map[string]struct{}, len(sel.ChunkIDs))
	for _, id := range sel.ChunkIDs {
		if len(ids) == maxSelected {
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if _, ok := candidates.Lookup(id); !ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return rag.Selection{ChunkIDs: ids, Justification: sel.Justification}
}

func (o *Orchestrator) cacheKey(query string, history rag.History, cfg Config) string {
	return cache.Key(
		rag.NormalizeText(query),
		history.Fingerprint(cfg.HistoryWindow),
		cfg.fingerprint(),
		o.deps.CacheNamespace,
	)
}

// run carries per-request state through the stages.
type run struct {
	o     *Orchestrator
	ctx   context.Context
	start time.Time
}

func (r *run) enter(state State) {
	r.emit(StageEvent{State: state, Elapsed: time.Since(r.start)})
}

// checkpoint fails the request when its context ended during stage.
func (r *run) checkpoint(stage State) error {
	if err := r.ctx.Err(); err != nil {
		pe := &Error{Stage: stage, Kind: KindCancelled, Err: err}
		r.failed(pe)
		return pe
	}
	return nil
}

func (r *run) fail(stage State, err error) error {
	pe := newError(stage, err)
	r.failed(pe)
	return pe
}

func (r *run) failed(pe *Error) {
	r.emit(StageEvent{State: StateFailed, Elapsed: time.Since(r.start), Err: pe})
	r.o.logger.Error("answer_failed",
		"stage", string(pe.Stage),
		"kind", string(pe.Kind),
		"error", pe.Err,
		"elapsed_ms", time.Since(r.start).Milliseconds(),
	)
}

func (r *run) emit(event StageEvent) {
	for _, hook := range r.o.hooks {
		hook(r.ctx, event)
	}
}
