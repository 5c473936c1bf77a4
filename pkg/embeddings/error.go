package embeddings

import "errors"

// ErrUnavailable indicates the embedding backend could not be reached or
// failed to produce a vector. Transient: callers may retry.
var ErrUnavailable = errors.New("embedding unavailable")
