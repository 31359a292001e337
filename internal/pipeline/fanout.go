package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// FanOut runs its member stages concurrently against the same session
// state and completes only when every member has reached a terminal
// state. A failing branch never cancels its siblings: each branch's
// outcome is recorded independently, successes are written to the
// session and emitted as state events in completion order, and failures
// surface as log events plus entries in Failures.
type FanOut struct {
	stages []Stage

	mu       sync.Mutex
	failures map[string]error
}

// NewFanOut builds a fan-out over the given stages.
func NewFanOut(stages ...Stage) *FanOut {
	return &FanOut{stages: stages}
}

// Produces returns every member's output key.
func (f *FanOut) Produces() []string {
	keys := make([]string, 0, len(f.stages))
	for _, st := range f.stages {
		keys = append(keys, st.OutputKey())
	}
	return keys
}

// Requires returns the union of member reads.
func (f *FanOut) Requires() []string {
	var reads []string
	for _, st := range f.stages {
		reads = append(reads, st.Reads()...)
	}
	return reads
}

// Failures returns the per-stage errors of the last run, keyed by output
// key. Empty when every branch succeeded.
func (f *FanOut) Failures() map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]error, len(f.failures))
	for k, v := range f.failures {
		out[k] = v
	}
	return out
}

// Run starts every member stage and waits for all of them. The returned
// error is non-nil only when every branch failed; partial failure is
// recoverable and flows into later stages as missing session keys.
func (f *FanOut) Run(ctx context.Context, state *SessionState, sink Sink) error {
	f.mu.Lock()
	f.failures = make(map[string]error)
	f.mu.Unlock()

	// Branches intentionally return nil to errgroup: a branch error must
	// not cancel the shared context siblings are running on.
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range f.stages {
		g.Go(func() error {
			start := time.Now()
			out, err := st.Run(gctx, state)
			if err != nil {
				log.Warn().Err(err).Str("stage", st.Name()).Dur("duration", time.Since(start)).Msg("Fan-out branch failed")
				f.recordFailure(st.OutputKey(), &StageError{Stage: st.Name(), Err: err})
				sink.Emit(LogEvent(fmt.Sprintf("%s failed: %v", st.Name(), err)))
				return nil
			}
			if err := state.Set(st.OutputKey(), out); err != nil {
				f.recordFailure(st.OutputKey(), &StageError{Stage: st.Name(), Err: err})
				return nil
			}
			log.Info().Str("stage", st.Name()).Dur("duration", time.Since(start)).Msg("Fan-out branch complete")
			sink.Emit(StateEvent(st.Name(), out))
			return nil
		})
	}
	_ = g.Wait()

	f.mu.Lock()
	failed := len(f.failures)
	f.mu.Unlock()

	if failed == len(f.stages) && len(f.stages) > 0 {
		return fmt.Errorf("all %d fan-out branches failed", failed)
	}
	return nil
}

func (f *FanOut) recordFailure(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = err
}
