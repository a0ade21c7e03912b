package pipeline

import (
	"context"
	"time"
)

// State is a step of the answering state machine.
type State string

const (
	StateIdle         State = "idle"
	StateTransforming State = "transforming"
	StateSearching    State = "searching"
	StateEnriching    State = "enriching"
	StateReranking    State = "reranking"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateCacheHit     State = "cache_hit"
	StateFailed       State = "failed"
)

// StageEvent is delivered to hooks on every state transition.
type StageEvent struct {
	State State

	// Elapsed is the time since the request entered the pipeline.
	Elapsed time.Duration

	// Err is set when State is StateFailed.
	Err error
}

// StageHook observes transitions. Hooks run synchronously on the request
// goroutine and must not block.
type StageHook func(ctx context.Context, event StageEvent)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStageHook registers an observer for state transitions.
func WithStageHook(hook StageHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, hook)
	}
}
