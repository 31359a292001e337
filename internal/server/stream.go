package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/alertx/alertx/internal/pipeline"
)

// eventWriter streams progress events to the client as line-delimited
// JSON envelopes, flushing after every event so completed work is
// visible before the pipeline finishes. It serializes concurrent emits
// from fan-out branches and drops anything after the terminal event, so
// the stream always ends with exactly one final or error line.
type eventWriter struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	terminal bool
}

var _ pipeline.Sink = (*eventWriter)(nil)

func newEventWriter(w http.ResponseWriter) *eventWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	return &eventWriter{w: w, flusher: flusher}
}

// Emit writes one event line. After a terminal event every further emit
// is a no-op.
func (ew *eventWriter) Emit(e pipeline.Event) {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.terminal {
		return
	}
	if e.Type == pipeline.EventFinal || e.Type == pipeline.EventError {
		ew.terminal = true
	}

	line, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to encode event")
		return
	}
	if _, err := ew.w.Write(append(line, '\n')); err != nil {
		// Client went away; the run context cancellation handles the rest.
		log.Debug().Err(err).Msg("Event write failed")
		return
	}
	if ew.flusher != nil {
		ew.flusher.Flush()
	}
}

// Terminated reports whether a terminal event has been written.
func (ew *eventWriter) Terminated() bool {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.terminal
}
