// Package local provides an in-process implementation of memory.Driver.
package local

import (
	"context"
	"sync"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/rag"
)

// Driver implements memory.Driver with a mutex guarded map of sessions.
type Driver struct {
	limits memory.Limits

	mu       sync.RWMutex
	sessions map[string]rag.History
}

// NewDriver creates a local memory driver.
func NewDriver(limits memory.Limits) *Driver {
	return &Driver{
		limits:   limits.WithDefaults(),
		sessions: make(map[string]rag.History),
	}
}

// History returns a copy of the session's turns.
func (d *Driver) History(_ context.Context, sessionID string) (rag.History, error) {
	if sessionID == "" {
		return nil, memory.ErrEmptySession
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.sessions[sessionID].Clone(), nil
}

// Append adds turns and trims the session to the most recent TrimTo turns
// once it grows past MaxTurns.
func (d *Driver) Append(_ context.Context, sessionID string, turns ...rag.Turn) error {
	if sessionID == "" {
		return memory.ErrEmptySession
	}
	if len(turns) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	h := append(d.sessions[sessionID], turns...)
	if len(h) > d.limits.MaxTurns {
		h = h.Last(d.limits.TrimTo).Clone()
	}
	d.sessions[sessionID] = h

	return nil
}

// Clear drops the session.
func (d *Driver) Clear(_ context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.sessions, sessionID)
	return nil
}

// Sessions returns the number of tracked sessions.
func (d *Driver) Sessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Close is a no-op for the local driver.
func (d *Driver) Close() error {
	return nil
}

var _ memory.Driver = (*Driver)(nil)
