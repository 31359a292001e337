// Package gemini wraps the Gemini model backend behind a narrow interface.
// The pipeline only needs "submit a structured request, receive text back";
// everything else (prompt content, parsing, retries) belongs to the stages.
package gemini

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Blob is an opaque media attachment for a generation request.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Request is one generation request to the model backend.
type Request struct {
	// System is the system instruction for the model, may be empty.
	System string
	// Prompt is the user-facing instruction text.
	Prompt string
	// Media is an optional inline attachment (video for this system).
	Media *Blob
}

// Generator is the model-backend boundary. Stages depend on this
// interface so tests can substitute a fake backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Client is a Generator backed by the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini-backed Generator using the given API key and model.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

// Generate sends the request to Gemini and returns the concatenated text response.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: req.System}},
			},
		}
	}

	// Media first, then the text prompt, matching the order the model
	// handles best for grounded analysis.
	var parts []*genai.Part
	if req.Media != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.Media.MIMEType,
				Data:     req.Media.Data,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	log.Debug().
		Str("model", c.model).
		Int("prompt_length", len(req.Prompt)).
		Bool("has_media", req.Media != nil).
		Msg("Sending generation request to Gemini")

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	text := resp.Text()
	log.Debug().Int("response_length", len(text)).Msg("Received response from Gemini")
	return text, nil
}
