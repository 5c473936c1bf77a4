// Package inmemory provides an in-process implementation of the
// vector.Driver interface.
//
// Facts are held in a mutex-guarded map and similarity queries compute exact
// cosine distance over the owner's records. This is the local-dev and test
// backbone; durable backends live in the sibling driver packages.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

// Config holds configuration for the in-memory driver.
type Config struct {
	// Dimensions is the required embedding dimensionality. Zero disables
	// the check (tests that never query may not care).
	Dimensions int
}

// Driver implements vector.Driver using in-process data structures.
type Driver struct {
	config Config

	mu sync.RWMutex

	// facts maps fact id -> record.
	facts map[string]fact.Fact
}

// NewDriver creates an in-memory vector driver.
func NewDriver(config Config) *Driver {
	return &Driver{
		config: config,
		facts:  make(map[string]fact.Fact),
	}
}

// Upsert writes facts keyed by id, overwriting existing records.
func (d *Driver) Upsert(_ context.Context, facts []fact.Fact) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, f := range facts {
		if err := d.checkDims(f.Embedding); err != nil {
			return err
		}
		d.facts[f.ID] = cloneFact(f)
	}
	return nil
}

// Query returns the owner's nearest facts by cosine distance.
func (d *Driver) Query(_ context.Context, owner string, embedding []float32, limit int) ([]vector.QueryResult, error) {
	if err := d.checkDims(embedding); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []vector.QueryResult
	for _, f := range d.facts {
		if f.Owner != owner {
			continue
		}
		dist, err := cosineDistance(embedding, f.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, vector.QueryResult{Fact: cloneFact(f), Distance: dist})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Fact.CreatedAt.After(results[j].Fact.CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Get retrieves the owner's facts with the given ids.
func (d *Driver) Get(_ context.Context, owner string, ids []string) ([]fact.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []fact.Fact
	for _, id := range ids {
		f, ok := d.facts[id]
		if !ok || f.Owner != owner {
			continue
		}
		out = append(out, cloneFact(f))
	}
	return out, nil
}

// UpdateStatus transitions a fact's status, touching only status and
// updated_at.
func (d *Driver) UpdateStatus(_ context.Context, id string, status fact.Status, updatedAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.facts[id]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}

	f.Status = status
	f.UpdatedAt = updatedAt
	d.facts[id] = f
	return nil
}

// List returns all of the owner's facts ordered by created_at descending.
func (d *Driver) List(_ context.Context, owner string) ([]fact.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []fact.Fact
	for _, f := range d.facts {
		if f.Owner != owner {
			continue
		}
		out = append(out, cloneFact(f))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Purge removes every fact belonging to the owner.
func (d *Driver) Purge(_ context.Context, owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, f := range d.facts {
		if f.Owner == owner {
			delete(d.facts, id)
		}
	}
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) checkDims(embedding []float32) error {
	if d.config.Dimensions > 0 && len(embedding) != d.config.Dimensions {
		return fmt.Errorf("%w: got %d, store expects %d",
			vector.ErrDimensionMismatch, len(embedding), d.config.Dimensions)
	}
	return nil
}

// cloneFact copies a fact so callers cannot mutate internal state.
func cloneFact(f fact.Fact) fact.Fact {
	if f.Embedding != nil {
		emb := make([]float32, len(f.Embedding))
		copy(emb, f.Embedding)
		f.Embedding = emb
	}
	return f
}

// cosineDistance returns 1 - cosine similarity of a and b.
func cosineDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", vector.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))), nil
}

var _ vector.Driver = (*Driver)(nil)
