package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/folio/pkg/pipeline"
)

// Error kinds raised by the server itself. Pipeline failures carry the
// pipeline.Kind values.
const (
	KindUnauthorized = "unauthorized"
	KindRateLimited  = "rate_limited"
	KindInternal     = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// StatusForKind maps a pipeline failure kind to an HTTP status.
func StatusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInvalidRequest:
		return fiber.StatusBadRequest
	case pipeline.KindRetrievalUnavailable:
		return fiber.StatusServiceUnavailable
	case pipeline.KindSynthesisFailed:
		return fiber.StatusBadGateway
	case pipeline.KindCancelled:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse. Pipeline errors keep their
// kind and stage.
func writeError(c *fiber.Ctx, err error) error {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return c.Status(StatusForKind(pe.Kind)).JSON(ErrorResponse{
			Error: pe.Err.Error(),
			Kind:  string(pe.Kind),
			Stage: string(pe.Stage),
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: err.Error(),
		Kind:  KindInternal,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: msg,
		Kind:  string(pipeline.KindInvalidRequest),
	})
}
