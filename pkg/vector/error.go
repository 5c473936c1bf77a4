package vector

import "errors"

var (
	// ErrNotFound is returned when a fact id does not exist in the store.
	ErrNotFound = errors.New("fact not found")

	// ErrUnavailable is returned when the vector store cannot be reached.
	// Transient: callers may retry.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch is returned when an embedding's dimensionality
	// does not match the store schema. Permanent for the given input.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
