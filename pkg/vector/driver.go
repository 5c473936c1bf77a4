// Package vector defines the persisted fact collection: keyed upsert, owner
// scoped nearest-neighbor query, and the status transition that implements
// forgetting without deletion.
//
// Every read is scoped to an owner and every write is scoped to a fact id;
// no interface exists for unscoped access. Distance is cosine distance,
// smaller is more similar, ties broken by most-recent created_at.
package vector

import (
	"context"
	"time"

	"github.com/engramlabs/engram/pkg/fact"
)

// QueryResult is a Fact returned from a similarity query along with its
// cosine distance from the query vector.
type QueryResult struct {
	Fact     fact.Fact
	Distance float32
}

// Driver abstracts vector database implementations storing Fact records.
type Driver interface {
	// Upsert writes facts keyed by id. Re-upserting an id overwrites the
	// record, making retried commits idempotent.
	Upsert(ctx context.Context, facts []fact.Fact) error

	// Query returns the owner's facts nearest to the embedding, ordered by
	// ascending cosine distance, capped at limit.
	Query(ctx context.Context, owner string, embedding []float32, limit int) ([]QueryResult, error)

	// Get retrieves the owner's facts with the given ids. Unknown ids are
	// skipped, not errors.
	Get(ctx context.Context, owner string, ids []string) ([]fact.Fact, error)

	// UpdateStatus transitions the status of the fact with the given id,
	// touching only status and updated_at. Returns ErrNotFound if no such
	// fact exists.
	UpdateStatus(ctx context.Context, id string, status fact.Status, updatedAt time.Time) error

	// List returns all of the owner's facts ordered by created_at
	// descending.
	List(ctx context.Context, owner string) ([]fact.Fact, error)

	// Purge removes every fact belonging to the owner. This is an
	// administrative operation, not part of the pipeline contract.
	Purge(ctx context.Context, owner string) error

	// Close releases resources held by the driver.
	Close() error
}
