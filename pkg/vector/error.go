package vector

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrInvalidRequest is returned when the store rejects a request as
	// malformed. Retrying the same request cannot succeed.
	ErrInvalidRequest = errors.New("invalid vector store request")
)

// StatusError is returned by HTTP backed stores and embedders when the
// remote answers with an unexpected status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is classifies 4xx responses (except 408 and 429) as ErrInvalidRequest and
// everything else as ErrConnection.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrInvalidRequest:
		return e.clientError()
	case ErrConnection:
		return !e.clientError()
	}
	return false
}

func (e *StatusError) clientError() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}
