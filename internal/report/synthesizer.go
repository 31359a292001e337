package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alertx/alertx/internal/agent"
	"github.com/alertx/alertx/internal/assets"
	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/pipeline"
)

// OutputKey is the session key the synthesized report is stored under.
const OutputKey = "final_report"

var reportSchema *jsonschema.Schema

func init() {
	reportSchema = agent.MustCompileSchema("incident-report.schema.json", assets.IncidentReportSchema)
}

// gapNotes maps an absent input key to the note the report must carry.
// Contract: when a fan-out branch failed, the report flags the gap
// explicitly instead of fabricating the missing analysis.
var gapNotes = map[string]string{
	agent.VideoAnalysisKey: "video analysis unavailable",
	agent.LocationDataKey:  "location data unavailable",
}

// NewSynthesizer builds the report synthesis stage. It reads the fan-out
// outputs and proceeds on partial input; the post-validation step makes
// the missing-data contract hold even when the model forgets to note a
// gap itself.
func NewSynthesizer(gen gemini.Generator) *agent.Stage {
	return agent.New(gen, agent.Config{
		Name:        "FinalReporter",
		OutputKey:   OutputKey,
		Reads:       []string{agent.VideoAnalysisKey, agent.LocationDataKey},
		Instruction: assets.ReporterSystemPrompt,
		Task:        "Combine the analysis sections below into the final emergency incident report.",
		Schema:      reportSchema,
		Post:        enforceGapNotes,
	})
}

// enforceGapNotes appends a deterministic missing-data note for every
// absent input the model did not flag on its own.
func enforceGapNotes(_ context.Context, state *pipeline.SessionState, out json.RawMessage) (json.RawMessage, error) {
	missing := agent.MissingReads([]string{agent.VideoAnalysisKey, agent.LocationDataKey}, state)
	if len(missing) == 0 {
		return out, nil
	}

	r, err := Parse(out)
	if err != nil {
		return nil, fmt.Errorf("parse incident report: %w", err)
	}

	for _, key := range missing {
		note := gapNotes[key]
		if note == "" {
			note = key + " unavailable"
		}
		if !containsNote(r.MissingData, note) {
			r.MissingData = append(r.MissingData, note)
		}
	}

	patched, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal incident report: %w", err)
	}
	return patched, nil
}

func containsNote(notes []string, want string) bool {
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n), strings.ToLower(want)) {
			return true
		}
	}
	return false
}
