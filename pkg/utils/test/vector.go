package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

// StatusUpdate records a single UpdateStatus call.
type StatusUpdate struct {
	ID        string
	Status    fact.Status
	UpdatedAt time.Time
}

// MockVectorDriver is a test vector driver that stores facts in a map,
// records calls, and returns configurable results and failures.
type MockVectorDriver struct {
	// Facts is the backing store, keyed by fact id.
	Facts map[string]fact.Fact

	// QueryResults is returned by Query when set; otherwise Query returns
	// nothing.
	QueryResults []vector.QueryResult

	// Upserted accumulates every batch passed to Upsert.
	Upserted [][]fact.Fact

	// StatusUpdates accumulates every UpdateStatus call that succeeded.
	StatusUpdates []StatusUpdate

	// FailUpsert causes Upsert to return an error.
	FailUpsert bool

	// FailNextUpserts causes the next N Upsert calls to return an error.
	FailNextUpserts int

	// FailQuery causes Query to return an error.
	FailQuery bool

	// FailUpdateStatus causes UpdateStatus to return an error.
	FailUpdateStatus bool

	mu sync.Mutex
}

// NewMockVectorDriver creates a new mock vector driver.
func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Facts: make(map[string]fact.Fact),
	}
}

func (m *MockVectorDriver) Upsert(_ context.Context, facts []fact.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpsert {
		return fmt.Errorf("%w: mock upsert failure", vector.ErrUnavailable)
	}
	if m.FailNextUpserts > 0 {
		m.FailNextUpserts--
		return fmt.Errorf("%w: mock upsert failure", vector.ErrUnavailable)
	}
	m.Upserted = append(m.Upserted, facts)
	for _, f := range facts {
		m.Facts[f.ID] = f
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ string, _ []float32, limit int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailQuery {
		return nil, fmt.Errorf("%w: mock query failure", vector.ErrUnavailable)
	}
	if len(m.QueryResults) < limit {
		return m.QueryResults, nil
	}
	return m.QueryResults[:limit], nil
}

func (m *MockVectorDriver) Get(_ context.Context, owner string, ids []string) ([]fact.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var facts []fact.Fact
	for _, id := range ids {
		if f, ok := m.Facts[id]; ok && f.Owner == owner {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

func (m *MockVectorDriver) UpdateStatus(_ context.Context, id string, status fact.Status, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdateStatus {
		return fmt.Errorf("%w: mock update failure", vector.ErrUnavailable)
	}
	f, ok := m.Facts[id]
	if !ok {
		return fmt.Errorf("%w: fact %s", vector.ErrNotFound, id)
	}
	f.Status = status
	f.UpdatedAt = updatedAt
	m.Facts[id] = f
	m.StatusUpdates = append(m.StatusUpdates, StatusUpdate{ID: id, Status: status, UpdatedAt: updatedAt})
	return nil
}

func (m *MockVectorDriver) List(_ context.Context, owner string) ([]fact.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var facts []fact.Fact
	for _, f := range m.Facts {
		if f.Owner == owner {
			facts = append(facts, f)
		}
	}
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})
	return facts, nil
}

func (m *MockVectorDriver) Purge(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.Facts {
		if f.Owner == owner {
			delete(m.Facts, id)
		}
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
