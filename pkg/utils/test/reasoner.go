package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/engramlabs/engram/pkg/reasoning"
)

// MockReasoner is a test reasoner that replays canned responses and records
// the prompts it was called with. It is safe for concurrent use.
type MockReasoner struct {
	// Responses is replayed in order, one per Complete call. When the
	// sequence runs out the last entry repeats.
	Responses []string

	// Prompts accumulates every prompt passed to Complete.
	Prompts []string

	// FailComplete causes every Complete call to return an error.
	FailComplete bool

	// FailFirst causes the first N Complete calls to return an error
	// before the responses replay.
	FailFirst int

	// Gate, when non-nil, blocks each Complete call after it is recorded
	// until the gate is closed or the context is done.
	Gate chan struct{}

	mu    sync.Mutex
	calls int
}

// NewMockReasoner creates a mock reasoner replaying the given responses.
func NewMockReasoner(responses ...string) *MockReasoner {
	return &MockReasoner{
		Responses: responses,
	}
}

func (m *MockReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.Prompts = append(m.Prompts, prompt)
	fail := m.FailComplete || m.calls <= m.FailFirst
	idx := m.calls - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	var response string
	if idx >= 0 {
		response = m.Responses[idx]
	}
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if fail {
		return "", fmt.Errorf("%w: mock completion failure", reasoning.ErrUnavailable)
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: mock has no responses configured", reasoning.ErrUnavailable)
	}
	return response, nil
}

// Calls reports how many times Complete was invoked.
func (m *MockReasoner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockReasoner) Close() error {
	return nil
}
