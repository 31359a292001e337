package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alertx/alertx/internal/agent"
	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/pipeline"
	"github.com/alertx/alertx/internal/report"
	"github.com/alertx/alertx/internal/telephony"
)

// Controller drives one pipeline run per incoming request: parallel
// video + location analysis, report synthesis, then call dispatch, with
// a typed progress event for every completed stage. Each run owns its
// session state; nothing is shared between requests beyond the
// read-only collaborators held here.
type Controller struct {
	gen         gemini.Generator
	finder      agent.FacilityFinder
	placer      telephony.CallPlacer
	destination string
}

// NewController wires the run collaborators.
func NewController(gen gemini.Generator, finder agent.FacilityFinder, placer telephony.CallPlacer, destination string) *Controller {
	return &Controller{gen: gen, finder: finder, placer: placer, destination: destination}
}

// RunInput is one request's payload: free text plus the optional
// uploaded video.
type RunInput struct {
	Text  string
	Media *gemini.Blob
}

// Run executes the pipeline and emits events through sink, ending with
// exactly one terminal event. Cancellation of ctx (client disconnect or
// timeout) aborts the remaining stages.
func (c *Controller) Run(ctx context.Context, in RunInput, sink pipeline.Sink) {
	runID := uuid.NewString()
	logger := log.With().Str("run", runID).Logger()
	start := time.Now()

	sink.Emit(pipeline.LogEvent("Analysis started"))

	fan := pipeline.NewFanOut(
		agent.NewVideoAnalyzer(c.gen, in.Text, in.Media),
		agent.NewLocationAgent(c.gen, c.finder, in.Text, in.Media),
	)
	comp, err := pipeline.NewComposer(
		fan,
		pipeline.Single{Stage: report.NewSynthesizer(c.gen)},
		pipeline.Single{Stage: telephony.NewDispatcher(c.gen, c.placer, c.destination)},
	)
	if err != nil {
		// Setup failure: nothing ran, fail fast.
		logger.Error().Err(err).Msg("Pipeline configuration invalid")
		sink.Emit(pipeline.ErrorEvent(err.Error()))
		return
	}

	state := pipeline.NewSessionState()
	if err := comp.Run(ctx, state, sink); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Dur("duration", time.Since(start)).Msg("Run cancelled by client")
		} else {
			logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Pipeline run failed")
		}
		sink.Emit(pipeline.ErrorEvent(err.Error()))
		return
	}

	final, ok := state.Get(report.OutputKey)
	if !ok {
		sink.Emit(pipeline.ErrorEvent("pipeline completed without a report"))
		return
	}

	ev := pipeline.FinalEvent(final)
	// The dispatch outcome rides along on the terminal event; a failed
	// call never invalidates the report itself.
	if callResult, ok := state.Get(telephony.OutputKey); ok {
		ev.Data = callResult
	}
	sink.Emit(ev)

	logger.Info().
		Dur("duration", time.Since(start)).
		Strs("session_keys", state.Keys()).
		Msg("Pipeline run complete")
}
