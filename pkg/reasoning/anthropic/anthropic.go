// Package anthropic implements pkg/reasoning's Reasoner on the Anthropic
// messages API. The API has no JSON output mode, so the prompt carries an
// explicit instruction and the gateway's shape check does the rest.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/engramlabs/engram/pkg/reasoning"
)

const (
	// DefaultModel is the default chat model.
	DefaultModel = "claude-haiku-4-5-20251001"

	// DefaultBaseURL is the default Anthropic API URL.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 30 * time.Second

	apiVersion = "2023-06-01"
	maxTokens  = 1024
)

// Config holds configuration for the Anthropic reasoner.
type Config struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the API endpoint.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model to use. Defaults to DefaultModel if empty.
	Model string

	// Timeout bounds a single completion call.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration
}

// Reasoner wraps the Anthropic messages API.
type Reasoner struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// messagesRequest is the request body for the messages API.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the response from the messages API.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewReasoner creates a new reasoner using the Anthropic API.
func NewReasoner(cfg Config) (*Reasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Reasoner{
		baseURL: baseURL,
		model:   model,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Complete sends the prompt and returns the model's raw response text.
func (r *Reasoner) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := messagesRequest{
		Model:     r.model,
		MaxTokens: maxTokens,
		Messages: []message{
			{Role: "user", Content: prompt + "\n\nReturn ONLY valid JSON, no markdown or extra text."},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", reasoning.ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", reasoning.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", r.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %v", reasoning.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: anthropic returned status %d: %s", reasoning.ErrUnavailable, resp.StatusCode, string(body))
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", reasoning.ErrUnavailable, err)
	}

	if msgResp.Error != nil {
		return "", fmt.Errorf("%w: anthropic error: %s", reasoning.ErrUnavailable, msgResp.Error.Message)
	}

	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("%w: no content returned", reasoning.ErrUnavailable)
	}

	return msgResp.Content[0].Text, nil
}

// Close releases resources held by the reasoner.
func (r *Reasoner) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

var _ reasoning.Reasoner = (*Reasoner)(nil)
