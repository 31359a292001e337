package pipeline

import (
	"context"
	"fmt"
)

// Composer chains blocks into a strictly ordered pipeline. Each block may
// read any key an earlier block produced; a block does not start until
// every prior block (including a whole fan-out) has reached a terminal
// state, and a block failure stops the run before later blocks fire.
type Composer struct {
	blocks []Block
}

// NewComposer validates and builds a composed pipeline. It returns a
// ConfigError when two blocks produce the same output key or when a
// block declares a read no earlier block produces.
func NewComposer(blocks ...Block) (*Composer, error) {
	produced := make(map[string]bool)
	for _, b := range blocks {
		for _, read := range b.Requires() {
			if !produced[read] {
				return nil, &ConfigError{Reason: fmt.Sprintf("input %q is not produced by any earlier stage", read)}
			}
		}
		for _, key := range b.Produces() {
			if produced[key] {
				return nil, &ConfigError{Reason: fmt.Sprintf("output key %q produced by more than one stage", key)}
			}
			produced[key] = true
		}
	}
	return &Composer{blocks: blocks}, nil
}

// Run executes the blocks in order against the given state, emitting
// progress through sink. It stops at the first block failure or context
// cancellation and returns that error; terminal events are the caller's
// responsibility.
func (c *Composer) Run(ctx context.Context, state *SessionState, sink Sink) error {
	for _, b := range c.blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Run(ctx, state, sink); err != nil {
			return err
		}
	}
	return nil
}
