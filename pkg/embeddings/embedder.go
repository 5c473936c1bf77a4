// Package embeddings provides the embedding gateway: text in, fixed-length
// vector out. Vector dimensionality is fixed system-wide and enforced by
// [Fixed]; a mismatch is a hard error, never silently coerced.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
