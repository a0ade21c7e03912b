package llm

import (
	"context"
	"fmt"
	"strings"
)

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (h *httpCaller) callAnthropic(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.JSON {
		prompt += "\n\nReturn ONLY valid JSON, no markdown or extra text."
	}

	body := anthropicRequest{
		Model:       h.model,
		MaxTokens:   h.tokens(req),
		System:      req.System,
		Temperature: h.temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}

	var result anthropicResponse
	err := h.postJSON(ctx, ProviderAnthropic, h.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         h.apiKey,
		"anthropic-version": "2023-06-01",
	}, body, &result)
	if err != nil {
		return "", err
	}

	if result.Error != nil {
		return "", fmt.Errorf("%w: anthropic error: %s", ErrGeneration, result.Error.Message)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic returned no content", ErrGeneration)
	}

	return text.String(), nil
}
