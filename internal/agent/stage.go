// Package agent implements model-driven pipeline stages. A stage owns an
// instruction, a set of declared input keys, and an output key; it
// assembles its prompt from the resolved inputs, calls the model backend,
// and validates the structured reply before it reaches session state.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/jsonutil"
	"github.com/alertx/alertx/internal/pipeline"
)

// maxAttempts bounds the malformed-output retry policy: one retry with a
// corrective suffix, then the stage fails.
const maxAttempts = 2

// retrySuffix is appended to the prompt on the second attempt after a
// malformed reply.
const retrySuffix = "\n\nYour previous reply was not valid JSON matching the required shape. " +
	"Respond again with ONLY the JSON object, no markdown fences, no prose."

// PostFunc transforms a stage's validated output before it is stored.
// It is the hook for orchestration-driven tool calls: the stage, not the
// model reply, decides whether an external collaborator is invoked.
type PostFunc func(ctx context.Context, state *pipeline.SessionState, out json.RawMessage) (json.RawMessage, error)

// Config describes one model-driven stage.
type Config struct {
	Name      string
	OutputKey string
	// Reads lists the session keys whose values are injected into the
	// prompt as labelled JSON blocks.
	Reads []string
	// Instruction is the system instruction for the model.
	Instruction string
	// Task is the user-facing lead text of the prompt.
	Task string
	// Media is an optional attachment sent with every attempt.
	Media *gemini.Blob
	// Schema validates the extracted JSON reply, when set.
	Schema *jsonschema.Schema
	// Post optionally transforms the validated output.
	Post PostFunc
}

// Stage is a model-driven pipeline.Stage.
type Stage struct {
	cfg Config
	gen gemini.Generator
}

var _ pipeline.Stage = (*Stage)(nil)

// New builds a stage over the given model backend.
func New(gen gemini.Generator, cfg Config) *Stage {
	return &Stage{cfg: cfg, gen: gen}
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string { return s.cfg.Name }

// OutputKey implements pipeline.Stage.
func (s *Stage) OutputKey() string { return s.cfg.OutputKey }

// Reads implements pipeline.Stage.
func (s *Stage) Reads() []string { return s.cfg.Reads }

// Run assembles the prompt, calls the model, and validates the reply.
// A malformed reply is retried once; a transport failure is not retried.
func (s *Stage) Run(ctx context.Context, state *pipeline.SessionState) (json.RawMessage, error) {
	prompt := s.buildPrompt(state)

	var out json.RawMessage
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		p := prompt
		if attempt > 1 {
			p += retrySuffix
		}

		start := time.Now()
		raw, err := s.gen.Generate(ctx, gemini.Request{
			System: s.cfg.Instruction,
			Prompt: p,
			Media:  s.cfg.Media,
		})
		if err != nil {
			return nil, fmt.Errorf("model backend: %w", err)
		}

		out, lastErr = s.extract(raw)
		if lastErr == nil {
			log.Debug().
				Str("stage", s.cfg.Name).
				Int("attempt", attempt).
				Dur("duration", time.Since(start)).
				Msg("Stage output validated")
			break
		}
		log.Warn().
			Err(lastErr).
			Str("stage", s.cfg.Name).
			Int("attempt", attempt).
			Msg("Malformed stage output")
	}
	if lastErr != nil {
		return nil, fmt.Errorf("malformed output after %d attempts: %w", maxAttempts, lastErr)
	}

	if s.cfg.Post != nil {
		return s.cfg.Post(ctx, state, out)
	}
	return out, nil
}

// buildPrompt renders the task text plus one labelled JSON block per
// declared input. Inputs missing from the session (a failed fan-out
// branch) are marked unavailable so the model can note the gap instead
// of inventing content.
func (s *Stage) buildPrompt(state *pipeline.SessionState) string {
	var sb strings.Builder
	sb.WriteString(s.cfg.Task)

	for _, key := range s.cfg.Reads {
		sb.WriteString("\n\n### ")
		sb.WriteString(key)
		sb.WriteString("\n")
		if val, ok := state.Get(key); ok {
			sb.WriteString("```json\n")
			sb.Write(val)
			sb.WriteString("\n```")
		} else {
			sb.WriteString("(unavailable: the producing stage failed)")
		}
	}
	return sb.String()
}

func (s *Stage) extract(raw string) (json.RawMessage, error) {
	out, err := jsonutil.ExtractRaw(raw)
	if err != nil {
		return nil, err
	}
	if s.cfg.Schema != nil {
		if err := ValidateSchema(s.cfg.Schema, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MissingReads returns the declared reads of the stage that are absent
// from the session state.
func MissingReads(reads []string, state *pipeline.SessionState) []string {
	var missing []string
	for _, key := range reads {
		if _, ok := state.Get(key); !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
