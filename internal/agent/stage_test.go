package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/pipeline"
)

// fakeGenerator replays scripted replies and records each request.
type fakeGenerator struct {
	replies  []string
	err      error
	requests []gemini.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req gemini.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	i := len(f.requests) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

const validVideoJSON = `{"scene_description":"Flooded street with stranded vehicles","risk_level":"High","event_type":"Flood"}`

func TestStage_StripsMarkdownFences(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"```json\n" + validVideoJSON + "\n```"}}
	stage := NewVideoAnalyzer(gen, "Analyze this video", nil)

	out, err := stage.Run(context.Background(), pipeline.NewSessionState())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var parsed struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if parsed.EventType != "Flood" {
		t.Errorf("unexpected event_type: %s", parsed.EventType)
	}
	if len(gen.requests) != 1 {
		t.Errorf("expected a single model call, got %d", len(gen.requests))
	}
}

func TestStage_RetriesOnceOnMalformedReply(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"Sure! The scene shows flooding.",
		validVideoJSON,
	}}
	stage := NewVideoAnalyzer(gen, "Analyze this video", nil)

	out, err := stage.Run(context.Background(), pipeline.NewSessionState())
	if err != nil {
		t.Fatalf("run failed after corrective retry: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}
	if len(gen.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(gen.requests))
	}
	if !strings.Contains(gen.requests[1].Prompt, "ONLY the JSON object") {
		t.Error("second attempt missing the corrective suffix")
	}
	if strings.Contains(gen.requests[0].Prompt, "ONLY the JSON object") {
		t.Error("first attempt must not carry the corrective suffix")
	}
}

func TestStage_FailsAfterSecondMalformedReply(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"not json", "still not json"}}
	stage := NewVideoAnalyzer(gen, "Analyze this video", nil)

	if _, err := stage.Run(context.Background(), pipeline.NewSessionState()); err == nil {
		t.Fatal("expected failure after two malformed replies")
	}
	if len(gen.requests) != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", len(gen.requests))
	}
}

func TestStage_SchemaRejectionTriggersRetry(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		`{"scene_description":"","risk_level":"Catastrophic","event_type":"Flood"}`,
		validVideoJSON,
	}}
	stage := NewVideoAnalyzer(gen, "Analyze this video", nil)

	if _, err := stage.Run(context.Background(), pipeline.NewSessionState()); err != nil {
		t.Fatalf("expected the valid second reply to recover: %v", err)
	}
	if len(gen.requests) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(gen.requests))
	}
}

func TestStage_TransportErrorIsNotRetried(t *testing.T) {
	cause := errors.New("connection reset")
	gen := &fakeGenerator{err: cause}
	stage := NewVideoAnalyzer(gen, "Analyze this video", nil)

	_, err := stage.Run(context.Background(), pipeline.NewSessionState())
	if !errors.Is(err, cause) {
		t.Fatalf("expected the transport error, got %v", err)
	}
	if len(gen.requests) != 1 {
		t.Errorf("transport errors must not be retried, got %d calls", len(gen.requests))
	}
}

func TestStage_PromptCarriesDeclaredInputs(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"ok":true}`}}
	stage := New(gen, Config{
		Name:      "Reader",
		OutputKey: "out",
		Reads:     []string{"video_analysis", "location_data"},
		Task:      "Synthesize the findings.",
	})

	state := pipeline.NewSessionState()
	if err := state.Set("video_analysis", json.RawMessage(validVideoJSON)); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	if _, err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	prompt := gen.requests[0].Prompt
	if !strings.Contains(prompt, "### video_analysis") {
		t.Error("prompt missing labelled input block")
	}
	if !strings.Contains(prompt, "Flooded street") {
		t.Error("prompt missing input value")
	}
	if !strings.Contains(prompt, "### location_data\n(unavailable: the producing stage failed)") {
		t.Error("prompt missing the unavailable marker for the absent input")
	}
}

func TestStage_MediaAttachedOnEveryAttempt(t *testing.T) {
	media := &gemini.Blob{MIMEType: "video/mp4", Data: []byte("frames")}
	gen := &fakeGenerator{replies: []string{"garbage", validVideoJSON}}
	stage := NewVideoAnalyzer(gen, "Analyze this video", media)

	if _, err := stage.Run(context.Background(), pipeline.NewSessionState()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for i, req := range gen.requests {
		if req.Media != media {
			t.Errorf("attempt %d missing the media attachment", i+1)
		}
	}
}

func TestMissingReads(t *testing.T) {
	state := pipeline.NewSessionState()
	if err := state.Set("present", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	missing := MissingReads([]string{"present", "absent"}, state)
	if len(missing) != 1 || missing[0] != "absent" {
		t.Errorf("unexpected missing reads: %v", missing)
	}
}
