// Package mcp provides an MCP (Model Context Protocol) server exposing the
// folio answering pipeline as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/utils"
)

// Answerer runs one question through the pipeline.
type Answerer interface {
	Answer(ctx context.Context, req pipeline.Request) (*rag.AnswerResult, error)
}

// BatchTransformer rewrites follow-up fragments into standalone queries.
type BatchTransformer interface {
	TransformBatch(ctx context.Context, fragments []string, history rag.History) []rag.StandaloneQuery
}

type Config struct {
	// Answerer backs the answer tool
	Answerer Answerer

	// Transformer backs the transform tool
	Transformer BatchTransformer

	// Memory for session history (optional, enables session_history and
	// session-aware answers)
	Memory memory.Driver

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the answer and transform tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "folio",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	if c.Noop {
		return s, nil
	}

	if c.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if c.Transformer == nil {
		return nil, errors.New("transformer is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        answerToolName,
		Description: answerDescription,
	}, s.handleAnswer)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        transformToolName,
		Description: transformDescription,
	}, s.handleTransform)

	if c.Memory != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        sessionHistoryToolName,
			Description: sessionHistoryDescription,
		}, s.handleSessionHistory)
	}

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// toolError builds an IsError result with a single text block.
func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// structured serializes output into a text block alongside the structured
// content so older clients still see the result.
func structured(output any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}
