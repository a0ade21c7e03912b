package memory

import "errors"

var (
	// ErrNotConfigured is returned when memory operations are attempted
	// but no memory driver has been configured.
	ErrNotConfigured = errors.New("memory not configured")

	// ErrEmptySession is returned when a session id is empty.
	ErrEmptySession = errors.New("session id is required")
)
