package nop

import (
	"context"

	"github.com/engramlabs/engram/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishWindowProcessed validates input and otherwise does nothing.
func (p *Publisher) PublishWindowProcessed(_ context.Context, event *eventstream.WindowProcessedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
