// Package kafka publishes pipeline events to a Kafka topic. Events are
// keyed by owner so one owner's runs land on one partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/eventstream"
)

// DefaultTopic is the topic window events are published to when the
// configuration does not name one.
const DefaultTopic = "engram.windows"

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of broker addresses. At least one is required.
	Brokers []string

	// Topic is the destination topic. Empty selects DefaultTopic.
	Topic string
}

// Publisher implements eventstream.Publisher on a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed publisher. The connection is lazy;
// the first publish dials the brokers.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(c.Brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{writer: writer, logger: logger}, nil
}

// PublishWindowProcessed writes the event to the topic keyed by owner.
func (p *Publisher) PublishWindowProcessed(ctx context.Context, event *eventstream.WindowProcessedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling window event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Owner),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("writing window event: %w", err)
	}

	p.logger.Debug("published window event",
		zap.String("owner", event.Owner),
		zap.String("event_id", event.EventID),
		zap.String("topic", p.writer.Topic),
	)
	return nil
}

// Close closes the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
