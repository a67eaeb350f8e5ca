// Package google provides an inference.Client backed by Gemini models.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/signalist/notifier/inference"
	"github.com/signalist/notifier/pipeline"
)

const defaultModel = "gemini-2.5-flash"

// Client implements inference.Client for Google's Gemini API.
//
// The underlying genai client holds a gRPC connection; call Close when the
// client is no longer needed.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed client. An empty model selects Gemini Flash,
// which is sized for short notification copy.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Complete implements inference.Client.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.GenerativeModel(c.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	return extractText(resp)
}

// Close releases the underlying API connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// extractText flattens text parts from the first candidate. Responses with
// no candidate content usually mean the safety filters blocked the output.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", blockedError(resp)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", pipeline.Permanent("google completion", &inference.SafetyError{
			Provider: "google",
			Reason:   candidate.FinishReason.String(),
		})
	}
	if candidate.Content == nil {
		return "", blockedError(resp)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func blockedError(resp *genai.GenerateContentResponse) error {
	reason := "no candidates returned"
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		reason = resp.PromptFeedback.BlockReason.String()
	}
	return pipeline.Permanent("google completion", &inference.SafetyError{
		Provider: "google",
		Reason:   reason,
	})
}

// classify maps SDK errors onto the retry taxonomy. Rate limits and server
// errors clear on retry; the rest of the 4xx range is a request problem
// that will not.
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		reason := "blocked"
		if blocked.PromptFeedback != nil {
			reason = blocked.PromptFeedback.BlockReason.String()
		}
		return pipeline.Permanent("google completion", &inference.SafetyError{
			Provider: "google",
			Reason:   reason,
		})
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return pipeline.Transient("google completion", err)
		default:
			return pipeline.Permanent("google completion", err)
		}
	}
	// No API response at all: connection and timeout failures.
	return pipeline.Transient("google completion", fmt.Errorf("request failed: %w", err))
}
