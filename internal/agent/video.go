package agent

import (
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alertx/alertx/internal/assets"
	"github.com/alertx/alertx/internal/gemini"
)

// Session keys written by the fan-out stages and read downstream.
const (
	VideoAnalysisKey = "video_analysis"
	LocationDataKey  = "location_data"
)

var videoAnalysisSchema *jsonschema.Schema

func init() {
	videoAnalysisSchema = MustCompileSchema("video-analysis.schema.json", assets.VideoAnalysisSchema)
}

// NewVideoAnalyzer builds the video analysis branch of the fan-out.
// userText is the free-text request that accompanied the upload; media is
// the uploaded video, or nil for a text-only request.
func NewVideoAnalyzer(gen gemini.Generator, userText string, media *gemini.Blob) *Stage {
	return New(gen, Config{
		Name:        "VideoAnalyzer",
		OutputKey:   VideoAnalysisKey,
		Instruction: assets.VideoAnalyzerPrompt,
		Task:        userText,
		Media:       media,
		Schema:      videoAnalysisSchema,
	})
}
