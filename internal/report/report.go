// Package report defines the incident report produced by the synthesis
// stage and the stage itself.
package report

import "encoding/json"

// AlertLevel grades an incident for the client dashboard.
type AlertLevel string

// Alert levels, most severe first.
const (
	AlertRed    AlertLevel = "RED"
	AlertOrange AlertLevel = "ORANGE"
	AlertYellow AlertLevel = "YELLOW"
	AlertGreen  AlertLevel = "GREEN"
)

// Priority orders recommended actions.
type Priority string

// Action priorities.
const (
	PriorityImmediate Priority = "Immediate"
	PriorityHigh      Priority = "High"
	PriorityMedium    Priority = "Medium"
	PriorityLow       Priority = "Low"
)

// Action is one recommended response step.
type Action struct {
	Title              string   `json:"title"`
	Lead               string   `json:"lead"`
	Rationale          string   `json:"rationale,omitempty"`
	Priority           Priority `json:"priority"`
	EstimatedResources string   `json:"estimated_resources,omitempty"`
}

// IncidentReport is the synthesized pipeline outcome. Immutable once
// produced: the dispatcher and the client both consume the same value.
type IncidentReport struct {
	AlertLevel  AlertLevel `json:"alert_level"`
	Summary     string     `json:"summary"`
	Threats     []string   `json:"threats,omitempty"`
	Actions     []Action   `json:"actions"`
	MissingData []string   `json:"missing_data,omitempty"`
}

// Parse decodes an incident report from a stage output.
func Parse(raw json.RawMessage) (IncidentReport, error) {
	var r IncidentReport
	err := json.Unmarshal(raw, &r)
	return r, err
}

// TopAction returns the highest-priority action, preferring list order
// among equal priorities. Unknown priorities rank below Low: Parse also
// sees raw session values that never went through schema validation.
func (r IncidentReport) TopAction() (Action, bool) {
	if len(r.Actions) == 0 {
		return Action{}, false
	}
	best := r.Actions[0]
	for _, a := range r.Actions[1:] {
		if priorityRank(a.Priority) < priorityRank(best.Priority) {
			best = a
		}
	}
	return best, true
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityImmediate:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}
