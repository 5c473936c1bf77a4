// Package openai implements pkg/embeddings' Embedder against the OpenAI
// embeddings API (or any compatible endpoint).
package openai

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/engramlabs/engram/pkg/embeddings"
)

// DefaultModel is the default OpenAI embedding model.
const DefaultModel = "text-embedding-3-small"

// Config holds configuration for the OpenAI embedder.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model is the embedding model. Defaults to DefaultModel if empty.
	Model string

	// Dimensions, when non-zero, requests vectors of that size from models
	// that support shortened embeddings.
	Dimensions int
}

// Embedder wraps the OpenAI embeddings API.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbedder creates a new embedder using the OpenAI embeddings API.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %v", embeddings.ErrUnavailable, err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrUnavailable)
	}

	return resp.Data[0].Embedding, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
