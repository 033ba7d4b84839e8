package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/flowlineio/flowline/pkg/channels/gochannel"
	"github.com/flowlineio/flowline/pkg/channels/kafka"
	"github.com/flowlineio/flowline/pkg/eventbus"
)

// NewEventBus creates the event bus for the selected provider. The gochannel
// provider only makes sense when the publisher and consumer live in one
// process (local development).
func NewEventBus(provider, serviceName, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	pub, sub, err := NewChannel(provider, serviceName, kafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	return eventbus.NewWatermillEventBus(pub, sub), nil
}

// NewChannel returns the raw watermill pair for callers that publish outside
// the typed event bus, like the node status publisher.
func NewChannel(provider, serviceName, kafkaBrokers string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		return kafka.CreateChannel(wmLogger, serviceName, kafkaBrokers)
	case "gochannel":
		return gochannel.CreateChannel(wmLogger)
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
