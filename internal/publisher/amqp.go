package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/metrics"
	"github.com/Checker-Finance/backoffice/pkg/model"
)

// DefaultExchange is the topic exchange events are routed through.
const DefaultExchange = "backoffice.events"

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes envelopes to a RabbitMQ topic exchange, routing key = topic.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	service  string
	logger   *zap.Logger
}

// NewAMQP dials url and declares the exchange.
func NewAMQP(url, exchange, service string, logger *zap.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	p := newAMQP(ch, exchange, service, logger)
	p.conn = conn
	return p, nil
}

func newAMQP(ch amqpChannel, exchange, service string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{channel: ch, exchange: exchange, service: service, logger: logger}
}

func (p *AMQPPublisher) Publish(ctx context.Context, env *model.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	start := time.Now()
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		env.Topic,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID.String(),
			CorrelationId: env.CorrelationID.String(),
			Type:          env.EventType,
			AppId:         p.service,
			Timestamp:     env.Timestamp,
			Body:          body,
		},
	)
	metrics.ObserveDuration(metrics.EventPublishLatency, start, "amqp")

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("routing_key", env.Topic),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncEventPublished("amqp", env.Topic, "error")
		return fmt.Errorf("publish %s: %w", env.Topic, err)
	}

	metrics.IncEventPublished("amqp", env.Topic, "ok")
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

var _ Publisher = (*AMQPPublisher)(nil)
