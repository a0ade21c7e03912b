package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
)

// StubAnswerer stands in for a pipeline.Orchestrator in transport tests.
type StubAnswerer struct {
	mu sync.Mutex

	// Result is returned by Answer unless Err is set.
	Result *rag.AnswerResult
	Err    error

	// Status is reported by Check. Defaults to healthy.
	Status string

	Cfg pipeline.Config

	requests []pipeline.Request
}

// NewStubAnswerer answers every question with text citing one page.
func NewStubAnswerer(text string) *StubAnswerer {
	return &StubAnswerer{
		Result: &rag.AnswerResult{
			AnswerText: text,
			SelectedPages: []rag.Page{
				{DocumentName: "cardapio.pdf", PageNumber: 3},
			},
			Justification:   "Page 3 lists the prices.",
			StandaloneQuery: rag.StandaloneQuery{Text: "stub"},
			TotalCandidates: 4,
		},
		Cfg: pipeline.DefaultConfig(),
	}
}

// Answer records req and returns the canned result.
func (s *StubAnswerer) Answer(ctx context.Context, req pipeline.Request) (*rag.AnswerResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	result, err := s.Result, s.Err
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	out := result.Clone()
	out.StandaloneQuery = rag.StandaloneQuery{Text: req.Query}
	return &out, nil
}

// Config returns Cfg.
func (s *StubAnswerer) Config() pipeline.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Cfg
}

// Check reports Status for every component.
func (s *StubAnswerer) Check(context.Context) pipeline.Health {
	s.mu.Lock()
	status := s.Status
	s.mu.Unlock()

	if status == "" {
		status = pipeline.StatusHealthy
	}
	return pipeline.Health{
		Status:    status,
		Timestamp: time.Now(),
		Components: map[string]pipeline.ComponentHealth{
			"vector_store": {Status: status},
		},
	}
}

// Stats reports the config and no cache entries.
func (s *StubAnswerer) Stats() pipeline.Stats {
	return pipeline.Stats{Config: s.Config()}
}

// Requests returns a copy of every request seen.
func (s *StubAnswerer) Requests() []pipeline.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// StubTransformer marks every fragment as rewritten by prefixing it.
type StubTransformer struct {
	Prefix string

	mu        sync.Mutex
	histories []rag.History
}

// TransformBatch returns Prefix+fragment for each fragment.
func (t *StubTransformer) TransformBatch(_ context.Context, fragments []string, history rag.History) []rag.StandaloneQuery {
	t.mu.Lock()
	t.histories = append(t.histories, history)
	t.mu.Unlock()

	out := make([]rag.StandaloneQuery, len(fragments))
	for i, f := range fragments {
		out[i] = rag.StandaloneQuery{Text: t.Prefix + f, WasRewritten: t.Prefix != ""}
	}
	return out
}

// Histories returns the history passed to each call.
func (t *StubTransformer) Histories() []rag.History {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]rag.History, len(t.histories))
	copy(out, t.histories)
	return out
}
