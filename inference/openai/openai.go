// Package openai provides an inference.Client backed by OpenAI chat models.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/signalist/notifier/pipeline"
)

// Client implements inference.Client for OpenAI's chat completions API.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// New creates an OpenAI-backed client. An empty model selects GPT-4o mini.
func New(apiKey string, model openai.ChatModel) *Client {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client, model: model}
}

// Complete implements inference.Client.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return pipeline.Transient("openai completion", err)
		default:
			return pipeline.Permanent("openai completion", err)
		}
	}
	return pipeline.Transient("openai completion", fmt.Errorf("request failed: %w", err))
}
