package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/rag"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AnswerRequest is the body of POST /v1/answer.
type AnswerRequest struct {
	Query string `json:"query" validate:"required,max=4000"`

	// History is used as-is when present. Otherwise the session history is
	// loaded from memory.
	History   []rag.Turn `json:"history,omitempty" validate:"max=100,dive"`
	SessionID string     `json:"session_id,omitempty" validate:"max=128"`
	Options   *Options   `json:"options,omitempty"`
}

// Options overrides the server's pipeline config for one request.
type Options struct {
	MaxCandidates       *int  `json:"max_candidates,omitempty"`
	MaxSelected         *int  `json:"max_selected,omitempty"`
	EnableReranking     *bool `json:"enable_reranking,omitempty"`
	EnableImageFetching *bool `json:"enable_image_fetching,omitempty"`
}

// Apply returns base with the set options replaced.
func (o *Options) Apply(base pipeline.Config) pipeline.Config {
	if o == nil {
		return base
	}
	if o.MaxCandidates != nil {
		base.MaxCandidates = *o.MaxCandidates
	}
	if o.MaxSelected != nil {
		base.MaxSelected = *o.MaxSelected
	}
	if o.EnableReranking != nil {
		base.EnableReranking = *o.EnableReranking
	}
	if o.EnableImageFetching != nil {
		base.EnableImageFetching = *o.EnableImageFetching
	}
	return base
}

// AnswerResponse is the body of a successful POST /v1/answer.
type AnswerResponse struct {
	rag.AnswerResult
	SessionID string `json:"session_id,omitempty"`
}

// TransformRequest is the body of POST /v1/transform.
type TransformRequest struct {
	Fragments []string   `json:"fragments" validate:"required,min=1,max=50,dive,required"`
	History   []rag.Turn `json:"history,omitempty" validate:"max=100,dive"`
	SessionID string     `json:"session_id,omitempty" validate:"max=128"`
}

// TransformResponse lists one standalone query per fragment, in order.
type TransformResponse struct {
	Queries []rag.StandaloneQuery `json:"queries"`
}

// handlePing returns a simple liveness response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth probes the pipeline's external services. Unhealthy
// pipelines answer 503 so load balancers can take the instance out.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	health := s.config.Answerer.Check(c.UserContext())
	if health.Status == pipeline.StatusUnhealthy {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(health)
}

// handleStats returns the pipeline's runtime counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.config.Answerer.Stats())
}

// handleAnswer runs one question through the pipeline.
func (s *Server) handleAnswer(c *fiber.Ctx) error {
	var req AnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.config.RequestTimeout)
	defer cancel()

	history := s.history(ctx, req.History, req.SessionID)

	var override *pipeline.Config
	if req.Options != nil {
		cfg := req.Options.Apply(s.config.Answerer.Config())
		override = &cfg
	}

	result, err := s.config.Answerer.Answer(ctx, pipeline.Request{
		Query:     req.Query,
		History:   history,
		Config:    override,
		SessionID: req.SessionID,
	})
	if err != nil {
		return writeError(c, err)
	}

	s.remember(ctx, req.SessionID, req.Query, result.AnswerText)

	return c.JSON(AnswerResponse{
		AnswerResult: *result,
		SessionID:    req.SessionID,
	})
}

// handleTransform rewrites a batch of fragments into standalone queries.
func (s *Server) handleTransform(c *fiber.Ctx) error {
	var req TransformRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.config.RequestTimeout)
	defer cancel()

	history := s.history(ctx, req.History, req.SessionID)
	queries := s.config.Transformer.TransformBatch(ctx, req.Fragments, history)

	return c.JSON(TransformResponse{Queries: queries})
}

// history prefers an explicit history over the stored session. Memory
// outages degrade to an empty history.
func (s *Server) history(ctx context.Context, explicit []rag.Turn, sessionID string) rag.History {
	if len(explicit) > 0 {
		return rag.History(explicit)
	}

	h, err := memory.Snapshot(ctx, s.config.Memory, sessionID)
	if err != nil {
		s.logger.Warn("session_history_unavailable",
			"session_id", sessionID,
			"error", err,
		)
		return nil
	}
	return h
}

func (s *Server) remember(ctx context.Context, sessionID, question, answer string) {
	if s.config.Memory == nil || sessionID == "" {
		return
	}
	if err := memory.Record(ctx, s.config.Memory, sessionID, question, answer); err != nil {
		s.logger.Warn("session_append_failed",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// validationMessage turns the first validator error into a short message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds the maximum of %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
