// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/embeddings/ollama"
	"github.com/engramlabs/engram/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string

	// Dimensions is the system-wide embedding dimensionality enforced on
	// every provider.
	Dimensions int
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	var (
		inner embeddings.Embedder
		err   error
	)

	switch o.ProviderType {
	case "ollama":
		inner, err = ollama.NewEmbedder(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "openai":
		inner, err = openai.NewEmbedder(openai.Config{
			APIKey:     o.APIKey,
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	if o.Dimensions > 0 {
		return embeddings.NewFixed(inner, o.Dimensions), nil
	}
	return inner, nil
}
