// Package transform rewrites conversational follow-ups into standalone
// search questions.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/rag"
)

const (
	defaultHistoryWindow = 4
	defaultTurnChars     = 100
	defaultMemoSize      = 1000
	defaultConcurrency   = 4
	rewriteMaxTokens     = 150
)

// Config holds configuration for a Transformer.
type Config struct {
	// Call is the rewrite model. Required.
	Call llm.CallFunc

	// Policy classifies queries; DefaultPolicy when zero.
	Policy *Policy

	// HistoryWindow is the number of trailing turns sent to the model.
	HistoryWindow int

	// TurnChars truncates each context turn.
	TurnChars int

	// MemoSize bounds the rewrite memo.
	MemoSize int

	// Concurrency bounds parallel rewrites in TransformBatch.
	Concurrency int

	Logger *slog.Logger
}

// Transformer turns a raw utterance plus history into a StandaloneQuery.
// It never fails: every error degrades to the raw text.
type Transformer struct {
	call        llm.CallFunc
	policy      Policy
	window      int
	turnChars   int
	concurrency int
	memo        *lru.Cache[string, string]
	logger      *slog.Logger
}

// New validates cfg and builds a Transformer.
func New(cfg Config) (*Transformer, error) {
	if cfg.Call == nil {
		return nil, errors.New("transform model caller is required")
	}

	t := &Transformer{
		call:        cfg.Call,
		policy:      DefaultPolicy(),
		window:      cfg.HistoryWindow,
		turnChars:   cfg.TurnChars,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if cfg.Policy != nil {
		t.policy = *cfg.Policy
	}
	if t.window <= 0 {
		t.window = defaultHistoryWindow
	}
	if t.turnChars <= 0 {
		t.turnChars = defaultTurnChars
	}
	if t.concurrency <= 0 {
		t.concurrency = defaultConcurrency
	}
	if t.logger == nil {
		t.logger = logger.Nop()
	}

	size := cfg.MemoSize
	if size <= 0 {
		size = defaultMemoSize
	}
	memo, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating rewrite memo: %w", err)
	}
	t.memo = memo

	return t, nil
}

// Transform returns raw unchanged when the history is empty or the policy
// finds the query self-contained. Otherwise the model rewrites it; model
// errors, timeouts and empty output fall back to raw.
func (t *Transformer) Transform(ctx context.Context, raw string, history rag.History) rag.StandaloneQuery {
	return t.transform(ctx, raw, history, buildContext(history, t.window, t.turnChars))
}

// TransformBatch rewrites every fragment against the same history, sharing
// one rendered context. Output order matches input order.
func (t *Transformer) TransformBatch(ctx context.Context, fragments []string, history rag.History) []rag.StandaloneQuery {
	out := make([]rag.StandaloneQuery, len(fragments))
	convo := buildContext(history, t.window, t.turnChars)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, fragment := range fragments {
		g.Go(func() error {
			out[i] = t.transform(gctx, fragment, history, convo)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// MemoLen is the number of memoized rewrites.
func (t *Transformer) MemoLen() int {
	return t.memo.Len()
}

func (t *Transformer) transform(ctx context.Context, raw string, history rag.History, convo string) rag.StandaloneQuery {
	unchanged := rag.StandaloneQuery{Text: raw, WasRewritten: false}

	if !t.policy.NeedsRewrite(raw, history) {
		return unchanged
	}

	key := rag.NormalizeText(raw) + "\x1f" + history.Fingerprint(t.window)
	if text, ok := t.memo.Get(key); ok {
		return rag.StandaloneQuery{Text: text, WasRewritten: true}
	}

	start := time.Now()
	out, err := t.call(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(convo, raw),
		MaxTokens: rewriteMaxTokens,
	})
	if err != nil {
		t.logger.Warn("query_transform_failed",
			"error", fmt.Errorf("%w: %w", rag.ErrTransformFailed, err),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return unchanged
	}

	text := cleanOutput(out)
	if text == "" {
		t.logger.Warn("query_transform_failed", "error", rag.ErrTransformFailed, "reason", "empty output")
		return unchanged
	}

	t.memo.Add(key, text)
	t.logger.Debug("query_transformed",
		"raw", raw,
		"standalone", text,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return rag.StandaloneQuery{Text: text, WasRewritten: true}
}
