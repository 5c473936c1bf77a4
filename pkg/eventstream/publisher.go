package eventstream

import "context"

// Publisher publishes pipeline events to an event stream backend.
type Publisher interface {
	PublishWindowProcessed(ctx context.Context, event *WindowProcessedEvent) error
	Close() error
}
