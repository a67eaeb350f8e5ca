// Package anthropic provides an inference.Client backed by Claude models.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/signalist/notifier/pipeline"
)

const defaultMaxTokens = 1024

// Client implements inference.Client for Anthropic's Messages API.
type Client struct {
	client *anthropic.Client
	model  anthropic.Model
}

// New creates an Anthropic-backed client. An empty model selects Claude
// Haiku, which is sized for short notification copy.
func New(apiKey string, model anthropic.Model) *Client {
	if model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client, model: model}
}

// Complete implements inference.Client.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Content) == 0 {
		return "", nil
	}
	return resp.Content[0].Text, nil
}

// classify maps SDK errors onto the retry taxonomy. Rate limits and server
// errors clear on retry; the rest of the 4xx range is a request problem
// that will not.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return pipeline.Transient("anthropic completion", err)
		default:
			return pipeline.Permanent("anthropic completion", err)
		}
	}
	// No API response at all: connection and timeout failures.
	return pipeline.Transient("anthropic completion", fmt.Errorf("request failed: %w", err))
}
