package llm

import "context"

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (h *httpCaller) callOllama(ctx context.Context, req Request) (string, error) {
	body := ollamaChatRequest{
		Model:    h.model,
		Messages: chatMessages(req),
		Stream:   false,
		Options: ollamaOptions{
			Temperature: h.temperature,
			NumPredict:  h.tokens(req),
		},
	}
	if req.JSON {
		body.Format = "json"
	}

	var result ollamaChatResponse
	if err := h.postJSON(ctx, ProviderOllama, h.baseURL+"/api/chat", nil, body, &result); err != nil {
		return "", err
	}

	return result.Message.Content, nil
}
