package llm

import (
	"context"
	"fmt"
)

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func chatMessages(req Request) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	return append(messages, chatMessage{Role: "user", Content: req.Prompt})
}

func (h *httpCaller) callOpenAI(ctx context.Context, req Request) (string, error) {
	body := openAIRequest{
		Model:       h.model,
		Messages:    chatMessages(req),
		Temperature: h.temperature,
		MaxTokens:   h.tokens(req),
	}
	if req.JSON {
		body.ResponseFormat = &openAIRespFormat{Type: "json_object"}
	}

	var result openAIResponse
	err := h.postJSON(ctx, ProviderOpenAI, h.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + h.apiKey}, body, &result)
	if err != nil {
		return "", err
	}

	if result.Error != nil {
		return "", fmt.Errorf("%w: openai error: %s", ErrGeneration, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrGeneration)
	}

	return result.Choices[0].Message.Content, nil
}
