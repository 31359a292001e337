// Package assets provides embedded static assets for the application.
//
// Prompt templates and output schemas are stored as files under prompts/
// and schemas/ and embedded at compile time, so instruction text stays
// reviewable as plain text instead of Go string literals.
package assets

import (
	_ "embed"
)

// --- Agent instructions ---

// VideoAnalyzerPrompt instructs the video analysis stage.
//
//go:embed prompts/video-analyzer.txt
var VideoAnalyzerPrompt string

// LocationAgentPrompt instructs the location estimation stage.
//
//go:embed prompts/location-agent.txt
var LocationAgentPrompt string

// ReporterSystemPrompt instructs the incident report synthesis stage.
//
//go:embed prompts/reporter-system.txt
var ReporterSystemPrompt string

// CallerSystemPrompt instructs the spoken call summary generation.
//
//go:embed prompts/caller-system.txt
var CallerSystemPrompt string

// --- Output schemas ---

// VideoAnalysisSchema validates the video analysis stage output.
//
//go:embed schemas/video-analysis.schema.json
var VideoAnalysisSchema string

// LocationEstimateSchema validates the location stage's model output,
// before the facility lookup results are merged in.
//
//go:embed schemas/location-estimate.schema.json
var LocationEstimateSchema string

// IncidentReportSchema validates the synthesized incident report.
//
//go:embed schemas/incident-report.schema.json
var IncidentReportSchema string
