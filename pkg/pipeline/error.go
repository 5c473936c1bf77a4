package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/ownerlock"
	"github.com/engramlabs/engram/pkg/reasoning"
	"github.com/engramlabs/engram/pkg/vector"
)

// Kind classifies a pipeline failure by its underlying cause.
type Kind string

// Failure kinds.
const (
	KindEmbeddingUnavailable   Kind = "embedding_unavailable"
	KindReasoningUnavailable   Kind = "reasoning_unavailable"
	KindSchemaViolation        Kind = "schema_violation"
	KindVectorStoreUnavailable Kind = "vector_store_unavailable"
	KindLockUnavailable        Kind = "lock_unavailable"
	KindNotFound               Kind = "not_found"
	KindDimensionMismatch      Kind = "dimension_mismatch"
	KindCancelled              Kind = "cancelled"
	KindInternal               Kind = "internal"
)

// Classify maps an error to its Kind by walking the wrap chain for the
// provider sentinels. Provider errors win over bare context errors: a
// timed-out embedding call already surfaces as EmbeddingUnavailable.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, reasoning.ErrSchemaViolation):
		return KindSchemaViolation
	case errors.Is(err, vector.ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, vector.ErrNotFound):
		return KindNotFound
	case errors.Is(err, embeddings.ErrUnavailable):
		return KindEmbeddingUnavailable
	case errors.Is(err, reasoning.ErrUnavailable):
		return KindReasoningUnavailable
	case errors.Is(err, vector.ErrUnavailable):
		return KindVectorStoreUnavailable
	case errors.Is(err, ownerlock.ErrUnavailable):
		return KindLockUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// Transient reports whether a failure of this kind is worth retrying.
// Only backend outages qualify; schema violations, missing facts and
// cancellations do not change on a second attempt.
func Transient(k Kind) bool {
	switch k {
	case KindEmbeddingUnavailable, KindReasoningUnavailable, KindVectorStoreUnavailable, KindLockUnavailable:
		return true
	}
	return false
}

// Error is the structured failure a pipeline run returns: the stage that
// was executing when the run stopped and the classified kind.
type Error struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
