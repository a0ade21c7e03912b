package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
)

var (
	answerToolName    = "answer"
	answerDescription = "Answer a question about the indexed documents. Follow-up questions are rewritten using the conversation history, relevant pages are retrieved and reranked, and the answer cites the document pages it used."
)

// AnswerInput represents the input arguments for the answer tool.
type AnswerInput struct {
	Query     string     `json:"query" jsonschema:"the question to answer"`
	History   []rag.Turn `json:"history,omitempty" jsonschema:"prior conversation turns, oldest first"`
	SessionID string     `json:"session_id,omitempty" jsonschema:"session whose stored history is used when history is empty"`
}

// AnswerOutput represents the output of the answer tool.
type AnswerOutput struct {
	Answer          string     `json:"answer"`
	Pages           []rag.Page `json:"pages"`
	Justification   string     `json:"justification"`
	StandaloneQuery string     `json:"standalone_query"`
	CacheHit        bool       `json:"cache_hit"`
}

// handleAnswer processes an answer request.
func (s *Server) handleAnswer(ctx context.Context, _ *mcp.CallToolRequest, input AnswerInput) (*mcp.CallToolResult, AnswerOutput, error) {
	logger := s.config.Logger

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return toolError("query is required"), emptyAnswerOutput(), nil
	}

	logger.Debug("mcp_answer",
		"query", query,
		"session_id", input.SessionID,
	)

	history := rag.History(input.History)
	if len(history) == 0 {
		h, err := memory.Snapshot(ctx, s.config.Memory, input.SessionID)
		if err != nil {
			logger.Warn("session_history_unavailable",
				"session_id", input.SessionID,
				"error", err,
			)
		}
		history = h
	}

	result, err := s.config.Answerer.Answer(ctx, pipeline.Request{
		Query:     query,
		History:   history,
		SessionID: input.SessionID,
	})
	if err != nil {
		logger.Error("mcp_answer_failed", "error", err)
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			return toolError("%s failed during %s: %v", pe.Kind, pe.Stage, pe.Err), emptyAnswerOutput(), nil
		}
		return toolError("answer failed: %v", err), emptyAnswerOutput(), nil
	}

	if s.config.Memory != nil && input.SessionID != "" {
		if err := memory.Record(ctx, s.config.Memory, input.SessionID, query, result.AnswerText); err != nil {
			logger.Warn("session_append_failed",
				"session_id", input.SessionID,
				"error", err,
			)
		}
	}

	pages := result.SelectedPages
	if pages == nil {
		pages = []rag.Page{}
	}
	output := AnswerOutput{
		Answer:          result.AnswerText,
		Pages:           pages,
		Justification:   result.Justification,
		StandaloneQuery: result.StandaloneQuery.Text,
		CacheHit:        result.CacheHit,
	}

	res, err := structured(output)
	if err != nil {
		return toolError("Failed to serialize results: %v", err), emptyAnswerOutput(), nil
	}
	return res, output, nil
}

// emptyAnswerOutput accompanies tool errors. The output schema requires
// pages to be an array, so it is never nil.
func emptyAnswerOutput() AnswerOutput {
	return AnswerOutput{Pages: []rag.Page{}}
}
