package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
)

// Answerer is the subset of *pipeline.Orchestrator the server uses.
type Answerer interface {
	Answer(ctx context.Context, req pipeline.Request) (*rag.AnswerResult, error)
	Config() pipeline.Config
	Check(ctx context.Context) pipeline.Health
	Stats() pipeline.Stats
}

// BatchTransformer rewrites several follow-up fragments at once.
type BatchTransformer interface {
	TransformBatch(ctx context.Context, fragments []string, history rag.History) []rag.StandaloneQuery
}

// Server is the API server for the folio answering service.
type Server struct {
	config  Config
	logger  *slog.Logger
	app     *fiber.App
	limiter *RateLimiter
}

// NewServer creates a new API server.
func NewServer(config Config) (*Server, error) {
	if config.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if config.Transformer == nil {
		return nil, errors.New("transformer is required")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultRequestTimeout
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: config.Logger,
		app:    app,
	}

	app.Use(s.requestLogger)

	app.Get("/ping", s.handlePing)
	app.Get("/health", s.handleHealth)

	guarded := []fiber.Handler{s.requireAPIKey}
	if config.RateLimit > 0 {
		s.limiter = NewRateLimiter(config.RateLimit, config.Burst)
		guarded = append(guarded, s.limiter.Middleware())
	}

	v1 := app.Group("/v1", guarded...)
	v1.Get("/stats", s.handleStats)
	v1.Post("/answer", s.handleAnswer)
	v1.Post("/transform", s.handleTransform)

	if config.MCP != nil {
		mcpHandler := adaptor.HTTPHandler(config.MCP)
		app.All("/mcp", append(guarded, mcpHandler)...)
		app.All("/mcp/*", append(guarded, mcpHandler)...)
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"auth", s.config.APIKey != "",
		"rate_limit", s.config.RateLimit,
		"mcp", s.config.MCP != nil,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Handler exposes the server as a net/http handler.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	return s.app.Shutdown()
}
