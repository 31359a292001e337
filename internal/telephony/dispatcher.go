package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/alertx/alertx/internal/assets"
	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/pipeline"
	"github.com/alertx/alertx/internal/report"
)

// OutputKey is the session key the dispatch outcome is stored under.
const OutputKey = "call_result"

// maxSpokenWords bounds the spoken summary length.
const maxSpokenWords = 35

// CallResult is the dispatcher's stage output and part of the terminal
// payload shown to the client.
type CallResult struct {
	CallPlaced bool   `json:"call_placed"`
	Message    string `json:"message,omitempty"`
	Details    string `json:"details,omitempty"`
}

// Dispatcher consumes the synthesized report, produces a short
// spoken-style summary, and invokes the call placer exactly once per
// completed run.
type Dispatcher struct {
	gen         gemini.Generator
	placer      CallPlacer
	destination string
}

var _ pipeline.Stage = (*Dispatcher)(nil)

// NewDispatcher builds the notification stage. placer may be nil when
// telephony is not configured; dispatch then degrades to a recorded
// no-op.
func NewDispatcher(gen gemini.Generator, placer CallPlacer, destination string) *Dispatcher {
	return &Dispatcher{gen: gen, placer: placer, destination: destination}
}

// Name implements pipeline.Stage.
func (d *Dispatcher) Name() string { return "AlertCaller" }

// OutputKey implements pipeline.Stage.
func (d *Dispatcher) OutputKey() string { return OutputKey }

// Reads implements pipeline.Stage.
func (d *Dispatcher) Reads() []string { return []string{report.OutputKey} }

// Run builds the spoken summary and places the call. Dispatch failures
// are captured in the CallResult rather than returned: the report is
// already final and must still reach the client.
func (d *Dispatcher) Run(ctx context.Context, state *pipeline.SessionState) (json.RawMessage, error) {
	raw, ok := state.Get(report.OutputKey)
	if !ok {
		return nil, fmt.Errorf("no %s in session", report.OutputKey)
	}
	r, err := report.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	message := d.spokenSummary(ctx, r, raw)

	result := CallResult{Message: message}
	switch {
	case d.placer == nil || d.destination == "":
		log.Warn().Msg("Telephony not configured, skipping call placement")
		result.Details = "telephony not configured"
	default:
		sid, err := d.placer.PlaceCall(ctx, d.destination, message)
		if err != nil {
			log.Error().Err(err).Msg("Call placement failed")
			result.Details = err.Error()
		} else {
			result.CallPlaced = true
			result.Details = sid
		}
	}

	return json.Marshal(result)
}

// spokenSummary asks the model for a natural phrasing and falls back to
// a deterministic summary when the model fails or overruns the word
// bound.
func (d *Dispatcher) spokenSummary(ctx context.Context, r report.IncidentReport, raw json.RawMessage) string {
	prompt := "Incident report:\n```json\n" + string(raw) + "\n```"
	text, err := d.gen.Generate(ctx, gemini.Request{
		System: assets.CallerSystemPrompt,
		Prompt: prompt,
	})
	if err == nil {
		text = strings.TrimSpace(text)
		if text != "" && wordCount(text) <= maxSpokenWords {
			return text
		}
		log.Warn().Int("words", wordCount(text)).Msg("Spoken summary over budget, using fallback")
	} else {
		log.Warn().Err(err).Msg("Spoken summary generation failed, using fallback")
	}
	return fallbackSummary(r)
}

// fallbackSummary composes the greeting, severity, and top action within
// the word bound without a model call.
func fallbackSummary(r report.IncidentReport) string {
	parts := []string{
		"Hello, this is the AlertX alert agent.",
		fmt.Sprintf("A %s level incident has been reported.", r.AlertLevel),
	}
	if action, ok := r.TopAction(); ok {
		parts = append(parts, fmt.Sprintf("Recommended action: %s, led by %s.", action.Title, action.Lead))
	}
	return truncateWords(strings.Join(parts, " "), maxSpokenWords)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func truncateWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return s
	}
	return strings.Join(fields[:n], " ")
}
