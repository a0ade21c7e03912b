package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/folio/pkg/rag"
	"github.com/papercomputeco/folio/pkg/search"
)

// ErrInvalidRequest marks malformed queries, histories and configs.
var ErrInvalidRequest = errors.New("invalid request")

// Kind classifies fatal pipeline failures for callers.
type Kind string

const (
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindSynthesisFailed      Kind = "synthesis_failed"
	KindCancelled            Kind = "cancelled"
	KindInvalidRequest       Kind = "invalid_request"
)

// Error is returned by Answer when a request ends in StateFailed.
type Error struct {
	Stage State
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError classifies err raised while in stage. Deadline errors from the
// request context are classified by the caller, which can see the context.
func newError(stage State, err error) *Error {
	e := &Error{Stage: stage, Err: err}

	switch {
	case errors.Is(err, context.Canceled):
		e.Kind = KindCancelled
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, search.ErrInvalidQuery):
		e.Kind = KindInvalidRequest
	case errors.Is(err, rag.ErrRetrievalUnavailable):
		e.Kind = KindRetrievalUnavailable
	case errors.Is(err, rag.ErrSynthesisFailed):
		e.Kind = KindSynthesisFailed
	case stage == StateSynthesizing:
		e.Kind = KindSynthesisFailed
		e.Err = fmt.Errorf("%w: %w", rag.ErrSynthesisFailed, err)
	default:
		e.Kind = KindRetrievalUnavailable
		e.Err = fmt.Errorf("%w: %w", rag.ErrRetrievalUnavailable, err)
	}

	return e
}
