// Package publisher emits agent events to NATS JetStream or RabbitMQ.
package publisher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/pkg/model"
)

// Publisher sends canonical envelopes to the event bus.
type Publisher interface {
	Publish(ctx context.Context, env *model.Envelope) error
	Close() error
}

// Config selects and configures the bus.
type Config struct {
	Bus      string // nats | amqp | none
	NATSURL  string
	AMQPURL  string
	Exchange string
	Service  string
}

// New connects the configured bus. "none" (or empty) returns a Noop.
func New(cfg Config, logger *zap.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Bus) {
	case "", "none":
		return Noop{}, nil
	case "nats":
		p, err := NewNATS(cfg.NATSURL, cfg.Service, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "amqp", "rabbitmq":
		p, err := NewAMQP(cfg.AMQPURL, cfg.Exchange, cfg.Service, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("publisher: unknown bus %q", cfg.Bus)
	}
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, *model.Envelope) error { return nil }
func (Noop) Close() error                                   { return nil }
