package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrGeneration wraps every failure of a model call.
var ErrGeneration = errors.New("text generation failed")

// StatusError is returned when a provider answers with a non-200 status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrGeneration) match a bare StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrGeneration
}

// IsTransient reports whether err is worth retrying: timeouts, network
// failures, rate limits and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
