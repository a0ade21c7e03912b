// Package llm calls text generation models over their HTTP APIs.
//
// Each stage of the answering pipeline (query rewriting, reranking, answer
// synthesis) holds its own CallFunc so that model, temperature and token
// budget are configured per stage:
//
//	[models.rerank]
//	provider = "openai"
//	model = "gpt-4o"
//	temperature = 0.1
package llm

import (
	"context"
	"strings"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Request is a single-turn generation request.
type Request struct {
	// System is an optional system instruction.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens overrides the caller's configured token budget when > 0.
	MaxTokens int

	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// CallFunc sends a request to a model and returns its text output.
type CallFunc func(ctx context.Context, req Request) (string, error)

// ExtractJSON returns the substring from the first '{' to the last '}' of a
// model response, which strips markdown fences and chatter around an object.
// The input is returned unchanged when no object is found.
func ExtractJSON(response string) string {
	start := strings.Index(response, "{")
	if start < 0 {
		return response
	}
	end := strings.LastIndex(response, "}")
	if end <= start {
		return response
	}
	return response[start : end+1]
}
