// Package memory stores per-session conversation history for the answering
// service.
//
// The pipeline never writes to memory: callers load a snapshot with History
// before a request and Append the user/assistant pair after a successful
// answer. Drivers bound each session by trimming to the most recent turns
// once MaxTurns is exceeded.
//
// Drivers are pluggable via configuration:
//
//	[memory]
//	provider = "local"   # or "redis"
package memory

import (
	"context"

	"github.com/papercomputeco/folio/pkg/rag"
)

const (
	// DefaultMaxTurns is the session length that triggers trimming.
	DefaultMaxTurns = 20

	// DefaultTrimTo is the number of most recent turns kept after trimming.
	DefaultTrimTo = 16
)

// Driver handles storage and recall of conversation turns by session.
type Driver interface {
	// History returns a snapshot of the session's turns, oldest first.
	// Unknown sessions return an empty history.
	History(ctx context.Context, sessionID string) (rag.History, error)

	// Append adds turns to the end of the session, trimming if needed.
	Append(ctx context.Context, sessionID string, turns ...rag.Turn) error

	// Clear removes every turn of the session.
	Clear(ctx context.Context, sessionID string) error

	// Close releases driver resources.
	Close() error
}

// Limits bounds a session's length.
type Limits struct {
	MaxTurns int
	TrimTo   int
}

// WithDefaults fills zero values and keeps TrimTo <= MaxTurns.
func (l Limits) WithDefaults() Limits {
	if l.MaxTurns <= 0 {
		l.MaxTurns = DefaultMaxTurns
	}
	if l.TrimTo <= 0 {
		l.TrimTo = DefaultTrimTo
	}
	if l.TrimTo > l.MaxTurns {
		l.TrimTo = l.MaxTurns
	}
	return l
}

// Snapshot loads the session history. A nil driver or an empty session id
// yields an empty history.
func Snapshot(ctx context.Context, d Driver, sessionID string) (rag.History, error) {
	if d == nil || sessionID == "" {
		return nil, nil
	}
	return d.History(ctx, sessionID)
}

// Record appends a question and its answer to the session.
func Record(ctx context.Context, d Driver, sessionID, question, answer string) error {
	if d == nil {
		return ErrNotConfigured
	}
	if sessionID == "" {
		return ErrEmptySession
	}
	return d.Append(ctx, sessionID,
		rag.Turn{Role: rag.RoleUser, Content: question},
		rag.Turn{Role: rag.RoleAssistant, Content: answer},
	)
}
