// Package rerank asks a judge model to pick the candidates that best answer
// a query. Judge failures fall back to the top candidates by similarity.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/rag"
)

const (
	// FallbackJustification is reported when the judge output is unusable.
	FallbackJustification = "Fallback: top candidates by similarity score."

	// DisabledJustification is reported when reranking is turned off.
	DisabledJustification = "Reranking disabled: top candidates by similarity score."

	previewRunes   = 300
	judgeMaxTokens = 512
)

// Config holds configuration for a Reranker.
type Config struct {
	// Call is the judge model. Required.
	Call llm.CallFunc

	Logger *slog.Logger
}

// Reranker selects candidates with a judge model.
type Reranker struct {
	call   llm.CallFunc
	logger *slog.Logger
}

// New builds a Reranker.
func New(cfg Config) (*Reranker, error) {
	if cfg.Call == nil {
		return nil, errors.New("rerank model caller is required")
	}
	r := &Reranker{call: cfg.Call, logger: cfg.Logger}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r, nil
}

// Rerank returns at most maxSelected candidate ids from candidates. It never
// fails: judge errors and unparseable output fall back to the top
// maxSelected candidates with FallbackJustification.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates rag.CandidateSet, maxSelected int) rag.Selection {
	if len(candidates) == 0 || maxSelected <= 0 {
		return rag.Selection{ChunkIDs: []string{}, Justification: "No candidates available."}
	}
	if len(candidates) == 1 {
		c := candidates[0]
		return rag.Selection{
			ChunkIDs:      []string{c.ID},
			Justification: fmt.Sprintf("Only candidate available: %s, page %d.", c.DocumentName, c.PageNumber),
		}
	}

	start := time.Now()
	r.logger.Debug("reranking_started", "candidates", len(candidates), "max_selected", maxSelected)

	out, err := r.call(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(query, candidates, maxSelected),
		MaxTokens: judgeMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return r.fallback(candidates, maxSelected, start, err)
	}

	switch res := Parse(out, len(candidates)).(type) {
	case Parsed:
		indices := res.Indices
		if len(indices) > maxSelected {
			indices = indices[:maxSelected]
		}
		ids := make([]string, len(indices))
		for i, idx := range indices {
			ids[i] = candidates[idx].ID
		}

		r.logger.Info("reranking_completed",
			"selected", len(ids),
			"candidates", len(candidates),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return rag.Selection{ChunkIDs: ids, Justification: res.Justification}

	case ParseFailed:
		return r.fallback(candidates, maxSelected, start, fmt.Errorf("%w: %s", rag.ErrRerankParseFailed, res.Reason))
	}

	return r.fallback(candidates, maxSelected, start, rag.ErrRerankParseFailed)
}

func (r *Reranker) fallback(candidates rag.CandidateSet, maxSelected int, start time.Time, err error) rag.Selection {
	r.logger.Warn("reranking_fallback",
		"error", err,
		"candidates", len(candidates),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rag.SelectTop(candidates, maxSelected, FallbackJustification)
}

const systemPrompt = `You judge which document pages best answer a question.
Reply with a JSON object only: {"selected": [candidate numbers], "justification": "one or two sentences"}.`

func buildPrompt(query string, candidates rag.CandidateSet, maxSelected int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %q\n", query)
	fmt.Fprintf(&b, "Select at most %d of the %d candidates below that best answer the question.\n", maxSelected, len(candidates))
	b.WriteString("Prefer pages that contain the exact information asked for.\n\nCANDIDATES:\n")

	for i, c := range candidates {
		preview := []rune(c.Content)
		ellipsis := ""
		if len(preview) > previewRunes {
			preview = preview[:previewRunes]
			ellipsis = "..."
		}
		fmt.Fprintf(&b, "\n=== CANDIDATE %d: %s, page %d ===\n", i+1, c.DocumentName, c.PageNumber)
		fmt.Fprintf(&b, "Similarity: %.4f\n", c.SimilarityScore)
		if c.ImageURL != "" {
			fmt.Fprintf(&b, "Page image: %s\n", c.ImageURL)
		}
		fmt.Fprintf(&b, "Content: %s%s\n", string(preview), ellipsis)
	}
	return b.String()
}
