// Package api provides the HTTP API server for asking questions about the
// indexed documents.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/folio/pkg/memory"
)

const defaultRequestTimeout = 2 * time.Minute

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Answerer runs questions through the answering pipeline.
	Answerer Answerer

	// Transformer serves /v1/transform.
	Transformer BatchTransformer

	// Memory stores session history (optional). Without it session_id is
	// ignored and only explicit histories are used.
	Memory memory.Driver

	// MCP is mounted under /mcp when set.
	MCP http.Handler

	// APIKey enables bearer authentication on /v1 and /mcp when set.
	APIKey string

	// RateLimit is the sustained requests per second per client IP.
	// Zero disables rate limiting.
	RateLimit float64
	Burst     int

	// RequestTimeout bounds a single answer. Defaults to two minutes.
	RequestTimeout time.Duration

	Logger *slog.Logger
}
