// Package openai implements pkg/reasoning's Reasoner on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/engramlabs/engram/pkg/reasoning"
)

// DefaultModel is the default chat model.
const DefaultModel = "gpt-4o-mini"

// Config holds configuration for the OpenAI reasoner.
type Config struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string

	// Model is the chat model to use. Defaults to DefaultModel if empty.
	Model string
}

// Reasoner wraps the OpenAI chat completions API with JSON mode forced on.
type Reasoner struct {
	client *openai.Client
	model  string
}

// NewReasoner creates a new reasoner using the OpenAI API.
func NewReasoner(cfg Config) (*Reasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Reasoner{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Complete sends the prompt and returns the model's raw response text.
func (r *Reasoner) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: creating chat completion: %v", reasoning.ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", reasoning.ErrUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

// Close releases resources held by the reasoner.
func (r *Reasoner) Close() error {
	return nil
}

var _ reasoning.Reasoner = (*Reasoner)(nil)
