// Package synth writes the final answer from the selected page chunks.
package synth

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

const answerMaxTokens = 2048

const systemPrompt = `You answer questions about documents using only the context provided.

Rules:
1. Use only the page content in the context. Do not use outside knowledge.
2. If the context does not contain the answer, say that the information is not in the documents.
3. Cite every fact with its document name and page number.
4. Write plain prose. Do not use Markdown such as **, _, # or bullet lists.
5. Answer in the same language as the question.`

// Config holds configuration for a Synthesizer.
type Config struct {
	// Call is the answer model. Required.
	Call llm.CallFunc

	Logger *slog.Logger
}

// Synthesizer produces grounded, cited answers.
type Synthesizer struct {
	call   llm.CallFunc
	logger *slog.Logger
}

// New builds a Synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Call == nil {
		return nil, errors.New("synthesis model caller is required")
	}
	s := &Synthesizer{call: cfg.Call, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s, nil
}

// Synthesize answers query from the selected chunks only. Any model failure
// or empty answer is rag.ErrSynthesisFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, selection rag.Selection, candidates rag.CandidateSet) (string, error) {
	chunks := selection.Chunks(candidates)
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no selected context", rag.ErrSynthesisFailed)
	}

	start := time.Now()
	out, err := s.call(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(query, chunks),
		MaxTokens: answerMaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, context.Canceled) {
			return "", ctxErr
		}
		s.logger.Error("answer_synthesis_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: %w", rag.ErrSynthesisFailed, err)
	}

	answer := strings.TrimSpace(out)
	if answer == "" {
		s.logger.Error("answer_synthesis_failed", "reason", "empty answer", "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: empty answer", rag.ErrSynthesisFailed)
	}

	s.logger.Debug("answer_synthesized",
		"pages", len(chunks),
		"chars", len(answer),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}

func buildPrompt(query string, chunks rag.CandidateSet) string {
	sources := make([]string, len(chunks))
	for i, c := range chunks {
		sources[i] = fmt.Sprintf("%s p.%d", c.DocumentName, c.PageNumber)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	fmt.Fprintf(&b, "Sources: %s\n\nContext:\n", strings.Join(sources, "; "))
	for _, c := range chunks {
		fmt.Fprintf(&b, "\n=== %s, page %d ===\n%s\n", c.DocumentName, c.PageNumber, strings.TrimSpace(c.Content))
	}
	b.WriteString("\nAnswer the question from the context above and cite the document and page.")
	return b.String()
}
