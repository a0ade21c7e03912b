package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/folio/pkg/llm"
)

// ScriptedLLM replays canned outputs and records every request.
type ScriptedLLM struct {
	mu sync.Mutex

	// Outputs are returned in order; the last one repeats.
	Outputs []string

	// Err, when set, is returned by every call.
	Err error

	// Respond, when set, computes the output from the request.
	Respond func(req llm.Request) (string, error)

	requests []llm.Request
}

// NewScriptedLLM creates a ScriptedLLM that answers with outputs in order.
func NewScriptedLLM(outputs ...string) *ScriptedLLM {
	return &ScriptedLLM{Outputs: outputs}
}

// Call satisfies llm.CallFunc.
func (s *ScriptedLLM) Call(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	respond, err, outputs := s.Respond, s.Err, s.Outputs
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if respond != nil {
		return respond(req)
	}
	if err != nil {
		return "", err
	}
	if len(outputs) == 0 {
		return "", nil
	}
	if n >= len(outputs) {
		n = len(outputs) - 1
	}
	return outputs[n], nil
}

// Calls is the number of requests seen.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded requests.
func (s *ScriptedLLM) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}
