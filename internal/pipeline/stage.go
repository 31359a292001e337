// Package pipeline provides the run-time composition for the analysis
// pipeline: per-run session state, a parallel fan-out that never
// short-circuits, and a sequential composer that stops on failure. The
// work inside each stage (model calls, facility lookups, call placement)
// lives behind the Stage interface.
package pipeline

import (
	"context"
	"encoding/json"
)

// Stage is one unit of work with a declared name, input keys, and output
// key. Run receives the session state to resolve its declared reads and
// returns the JSON value to store under its output key.
type Stage interface {
	// Name identifies the stage in events and errors.
	Name() string
	// OutputKey is the session key the stage's result is stored under.
	OutputKey() string
	// Reads lists the session keys the stage depends on. Setup fails if
	// a read has no earlier producer.
	Reads() []string

	Run(ctx context.Context, state *SessionState) (json.RawMessage, error)
}

// Block is one sequential step of a composed pipeline: either a single
// stage or a parallel fan-out of stages.
type Block interface {
	// Produces lists every output key the block writes.
	Produces() []string
	// Requires lists every session key the block reads.
	Requires() []string

	Run(ctx context.Context, state *SessionState, sink Sink) error
}

// Single wraps one Stage as a Block. A Single's failure stops the
// composer (unlike a fan-out branch failure, which is partial).
type Single struct {
	Stage Stage
}

// Produces returns the stage's output key.
func (s Single) Produces() []string { return []string{s.Stage.OutputKey()} }

// Requires returns the stage's declared reads.
func (s Single) Requires() []string { return s.Stage.Reads() }

// Run executes the stage, stores its output, and emits a state event.
func (s Single) Run(ctx context.Context, state *SessionState, sink Sink) error {
	out, err := s.Stage.Run(ctx, state)
	if err != nil {
		return &StageError{Stage: s.Stage.Name(), Err: err}
	}
	if err := state.Set(s.Stage.OutputKey(), out); err != nil {
		return &StageError{Stage: s.Stage.Name(), Err: err}
	}
	sink.Emit(StateEvent(s.Stage.Name(), out))
	return nil
}
