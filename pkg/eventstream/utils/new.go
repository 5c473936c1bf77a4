// Package eventutils is the eventstream utility package
package eventutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/eventstream"
	eskafka "github.com/engramlabs/engram/pkg/eventstream/kafka"
	"github.com/engramlabs/engram/pkg/eventstream/nop"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *zap.Logger
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		return eskafka.NewPublisher(eskafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}
