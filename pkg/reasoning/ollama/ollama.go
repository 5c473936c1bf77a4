// Package ollama implements pkg/reasoning's Reasoner client for Ollama's
// chat API.
package ollama

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
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 30 * time.Second
)

// Reasoner wraps Ollama's chat API with JSON output forced on.
type Reasoner struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config holds configuration for the Ollama reasoner.
type Config struct {
	// BaseURL is the Ollama API URL (e.g., "http://localhost:11434").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model to use (e.g., "llama3.2").
	// Defaults to DefaultModel if empty.
	Model string

	// Timeout bounds a single completion call.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration
}

// chatRequest is the request body for Ollama's chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from Ollama's chat API.
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// NewReasoner creates a new reasoner using Ollama's chat API.
func NewReasoner(cfg Config) (*Reasoner, error) {
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
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Complete sends the prompt and returns the model's raw response text.
func (r *Reasoner) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Stream: false,
		Format: "json",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", reasoning.ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", reasoning.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %v", reasoning.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama returned status %d: %s", reasoning.ErrUnavailable, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", reasoning.ErrUnavailable, err)
	}

	return chatResp.Message.Content, nil
}

// Close releases resources held by the reasoner.
func (r *Reasoner) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

var _ reasoning.Reasoner = (*Reasoner)(nil)
