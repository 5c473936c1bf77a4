package embeddings

import (
	"context"
	"fmt"

	"github.com/engramlabs/engram/pkg/vector"
)

// Fixed wraps an Embedder and enforces the system-wide embedding
// dimensionality. Every vector store record shares one dimensionality; an
// embedder returning anything else corrupts nearest-neighbor queries, so the
// mismatch is surfaced as a hard error.
type Fixed struct {
	inner Embedder
	dims  int
}

// NewFixed wraps inner, requiring every embedding to have dims elements.
func NewFixed(inner Embedder, dims int) *Fixed {
	return &Fixed{inner: inner, dims: dims}
}

// Dims returns the enforced dimensionality.
func (f *Fixed) Dims() int {
	return f.dims
}

// Embed delegates to the wrapped embedder and verifies dimensionality.
func (f *Fixed) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := f.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embedding) != f.dims {
		return nil, fmt.Errorf("%w: embedder returned %d dimensions, store expects %d",
			vector.ErrDimensionMismatch, len(embedding), f.dims)
	}
	return embedding, nil
}

// Close closes the wrapped embedder.
func (f *Fixed) Close() error {
	return f.inner.Close()
}

var _ Embedder = (*Fixed)(nil)
