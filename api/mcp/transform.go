package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/rag"
)

const maxFragments = 50

var (
	transformToolName    = "transform"
	transformDescription = "Rewrite follow-up question fragments into standalone queries using the conversation history. Fragments that already stand alone are returned unchanged."

	sessionHistoryToolName    = "session_history"
	sessionHistoryDescription = "Return the stored conversation turns of a session, oldest first."
)

// TransformInput represents the input arguments for the transform tool.
type TransformInput struct {
	Fragments []string   `json:"fragments" jsonschema:"the follow-up fragments to rewrite"`
	History   []rag.Turn `json:"history,omitempty" jsonschema:"prior conversation turns, oldest first"`
	SessionID string     `json:"session_id,omitempty" jsonschema:"session whose stored history is used when history is empty"`
}

// TransformOutput represents the output of the transform tool.
type TransformOutput struct {
	Queries []rag.StandaloneQuery `json:"queries"`
}

// handleTransform processes a batch rewrite request.
func (s *Server) handleTransform(ctx context.Context, _ *mcp.CallToolRequest, input TransformInput) (*mcp.CallToolResult, TransformOutput, error) {
	if len(input.Fragments) == 0 {
		return toolError("fragments is required"), emptyTransformOutput(), nil
	}
	if len(input.Fragments) > maxFragments {
		return toolError("fragments exceeds the maximum of %d", maxFragments), emptyTransformOutput(), nil
	}
	for i, f := range input.Fragments {
		if strings.TrimSpace(f) == "" {
			return toolError("fragment %d is empty", i), emptyTransformOutput(), nil
		}
	}

	history := rag.History(input.History)
	if len(history) == 0 {
		h, err := memory.Snapshot(ctx, s.config.Memory, input.SessionID)
		if err != nil {
			s.config.Logger.Warn("session_history_unavailable",
				"session_id", input.SessionID,
				"error", err,
			)
		}
		history = h
	}

	output := TransformOutput{
		Queries: s.config.Transformer.TransformBatch(ctx, input.Fragments, history),
	}

	res, err := structured(output)
	if err != nil {
		return toolError("Failed to serialize results: %v", err), emptyTransformOutput(), nil
	}
	return res, output, nil
}

// SessionHistoryInput represents the input arguments for the session_history tool.
type SessionHistoryInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to read"`
}

// SessionHistoryOutput represents the stored turns of a session.
type SessionHistoryOutput struct {
	Turns []rag.Turn `json:"turns"`
}

func (s *Server) handleSessionHistory(ctx context.Context, _ *mcp.CallToolRequest, input SessionHistoryInput) (*mcp.CallToolResult, SessionHistoryOutput, error) {
	if input.SessionID == "" {
		return toolError("session_id is required"), emptySessionHistoryOutput(), nil
	}

	h, err := s.config.Memory.History(ctx, input.SessionID)
	if err != nil {
		return toolError("Session recall failed: %v", err), emptySessionHistoryOutput(), nil
	}

	turns := []rag.Turn(h)
	if turns == nil {
		turns = []rag.Turn{}
	}
	output := SessionHistoryOutput{Turns: turns}

	res, err := structured(output)
	if err != nil {
		return toolError("Failed to serialize results: %v", err), emptySessionHistoryOutput(), nil
	}
	return res, output, nil
}

func emptyTransformOutput() TransformOutput {
	return TransformOutput{Queries: []rag.StandaloneQuery{}}
}

func emptySessionHistoryOutput() SessionHistoryOutput {
	return SessionHistoryOutput{Turns: []rag.Turn{}}
}
