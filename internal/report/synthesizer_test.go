package report

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alertx/alertx/internal/agent"
	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/pipeline"
)

type scriptedGenerator struct {
	reply    string
	requests []gemini.Request
}

func (s *scriptedGenerator) Generate(_ context.Context, req gemini.Request) (string, error) {
	s.requests = append(s.requests, req)
	return s.reply, nil
}

const minimalReportJSON = `{
  "alert_level": "RED",
  "summary": "Severe flooding across the market district.",
  "actions": [
    {"title": "Evacuate low-lying blocks", "lead": "Fire Department", "priority": "Immediate"}
  ]
}`

func runSynthesizer(t *testing.T, reply string, state *pipeline.SessionState) (IncidentReport, *scriptedGenerator) {
	t.Helper()
	gen := &scriptedGenerator{reply: reply}
	stage := NewSynthesizer(gen)

	out, err := stage.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("synthesis failed: %v", err)
	}
	r, err := Parse(out)
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	return r, gen
}

func fullState(t *testing.T) *pipeline.SessionState {
	t.Helper()
	state := pipeline.NewSessionState()
	seed := map[string]string{
		agent.VideoAnalysisKey: `{"scene_description":"flooding","risk_level":"High","event_type":"Flood"}`,
		agent.LocationDataKey:  `{"user_location":{"lat":12.9716,"lon":77.5946},"confident":true,"nearby_places":[]}`,
	}
	for key, val := range seed {
		if err := state.Set(key, json.RawMessage(val)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	return state
}

func TestSynthesizer_FullInputs(t *testing.T) {
	r, gen := runSynthesizer(t, minimalReportJSON, fullState(t))

	if r.AlertLevel != AlertRed {
		t.Errorf("alert level = %s, want RED", r.AlertLevel)
	}
	if len(r.MissingData) != 0 {
		t.Errorf("no gaps expected with full inputs, got %v", r.MissingData)
	}
	// Both fan-out outputs flow into the prompt.
	prompt := gen.requests[0].Prompt
	for _, want := range []string{"### video_analysis", "### location_data", "flooding"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSynthesizer_FlagsMissingVideoAnalysis(t *testing.T) {
	state := pipeline.NewSessionState()
	if err := state.Set(agent.LocationDataKey, json.RawMessage(`{"user_location":{"lat":1,"lon":1},"confident":true,"nearby_places":[]}`)); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	r, _ := runSynthesizer(t, minimalReportJSON, state)

	if !containsNote(r.MissingData, "video analysis unavailable") {
		t.Errorf("missing_data must flag the failed branch, got %v", r.MissingData)
	}
	if containsNote(r.MissingData, "location data unavailable") {
		t.Errorf("surviving branch must not be flagged, got %v", r.MissingData)
	}
}

func TestSynthesizer_DoesNotDuplicateModelNotedGap(t *testing.T) {
	state := pipeline.NewSessionState()
	if err := state.Set(agent.LocationDataKey, json.RawMessage(`{"user_location":{"lat":1,"lon":1},"confident":true,"nearby_places":[]}`)); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	reply := `{
	  "alert_level": "ORANGE",
	  "summary": "Report based on location only.",
	  "actions": [{"title": "Dispatch scouts", "lead": "Police", "priority": "High"}],
	  "missing_data": ["Video analysis unavailable, assessment based on text only"]
	}`
	r, _ := runSynthesizer(t, reply, state)

	count := 0
	for _, n := range r.MissingData {
		if containsNote([]string{n}, "video analysis unavailable") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("gap noted %d times, want exactly once: %v", count, r.MissingData)
	}
}

func TestTopAction(t *testing.T) {
	r := IncidentReport{Actions: []Action{
		{Title: "Notify residents", Priority: PriorityMedium},
		{Title: "Cut power to flooded blocks", Priority: PriorityImmediate},
		{Title: "Stage ambulances", Priority: PriorityImmediate},
	}}
	top, ok := r.TopAction()
	if !ok || top.Title != "Cut power to flooded blocks" {
		t.Errorf("expected first Immediate action, got %+v ok=%v", top, ok)
	}

	if _, ok := (IncidentReport{}).TopAction(); ok {
		t.Error("empty report must not yield an action")
	}
}

func TestTopAction_UnknownPriorityRanksLast(t *testing.T) {
	// Raw session values bypass schema validation, so unrecognized
	// priorities can reach the ranking.
	r := IncidentReport{Actions: []Action{
		{Title: "Mystery step", Priority: Priority("Critical")},
		{Title: "Sandbag the riverbank", Priority: PriorityLow},
	}}
	top, ok := r.TopAction()
	if !ok || top.Title != "Sandbag the riverbank" {
		t.Errorf("known priority must outrank an unknown one, got %+v ok=%v", top, ok)
	}

	onlyUnknown := IncidentReport{Actions: []Action{
		{Title: "First", Priority: Priority("Critical")},
		{Title: "Second", Priority: Priority("Weird")},
	}}
	top, ok = onlyUnknown.TopAction()
	if !ok || top.Title != "First" {
		t.Errorf("list order must break unknown-priority ties, got %+v ok=%v", top, ok)
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	if _, err := Parse(json.RawMessage(`"just a string"`)); err == nil {
		t.Error("expected parse failure for non-object report")
	}
}
