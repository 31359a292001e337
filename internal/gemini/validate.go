package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ValidateKey verifies the API key is usable by making a minimal request.
// A startup check, so an invalid key fails the process before the first
// pipeline run instead of during one.
func ValidateKey(ctx context.Context, c *Client) error {
	log.Debug().Msg("Validating API key with Gemini API")

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text("hi"), nil)
	if err != nil {
		return classifyError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return fmt.Errorf("API key validation returned empty response")
	}

	log.Info().Msg("API key validated")
	return nil
}

// classifyError maps a validation failure to a human-actionable message.
func classifyError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403:
			return fmt.Errorf("API key is invalid, expired, or lacks permissions: %w", err)
		case 429:
			return fmt.Errorf("API rate limit exceeded - try again later: %w", err)
		case 500, 502, 503, 504:
			return fmt.Errorf("Gemini API server error - try again later: %w", err)
		}
		return err
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid"),
		strings.Contains(errLower, "invalid api key"),
		strings.Contains(errLower, "permission denied"):
		return fmt.Errorf("API key is invalid or has been revoked: %w", err)
	case strings.Contains(errLower, "connection"),
		strings.Contains(errLower, "timeout"),
		strings.Contains(errLower, "no such host"):
		return fmt.Errorf("network error - check your internet connection: %w", err)
	}
	return fmt.Errorf("failed to validate API key: %w", err)
}
