package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/metrics"
	"github.com/Checker-Finance/backoffice/pkg/model"
)

// jetStream is the publishing half of nats.JetStreamContext.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes envelopes to JetStream, one subject per topic.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStream
	service string
	logger  *zap.Logger
}

// NewNATS connects to url with JetStream enabled.
func NewNATS(url, service string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(service), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	p := newNATS(js, service, logger)
	p.nc = nc
	return p, nil
}

func newNATS(js jetStream, service string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{js: js, service: service, logger: logger}
}

func (p *NATSPublisher) Publish(_ context.Context, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: env.Topic,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}
	msg.Header.Set(nats.MsgIdHdr, env.ID.String())

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.EventPublishLatency, start, "nats")

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", env.Topic),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncEventPublished("nats", env.Topic, "error")
		return fmt.Errorf("publish %s: %w", env.Topic, err)
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", env.Topic),
		zap.String("event_type", env.EventType))
	metrics.IncEventPublished("nats", env.Topic, "ok")
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil && !p.nc.IsClosed() {
		return p.nc.Drain()
	}
	return nil
}

var _ Publisher = (*NATSPublisher)(nil)
