package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/pkg/model"
)

// --- mock types ---

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type mockChannel struct {
	sent   []published
	fail   bool
	closed bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if m.fail {
		return errors.New("channel closed")
	}
	m.sent = append(m.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func syncedEnvelope(t *testing.T) *model.Envelope {
	t.Helper()
	env, err := model.NewEnvelope(model.TopicCollectionSynced, model.EventCollectionSynced, "backoffice-sync",
		model.CollectionSynced{Collection: "orders", Count: 3, Checksum: "abc", Changed: true})
	require.NoError(t, err)
	return env
}

// --- NATS ---

func TestNATSPublisher_PublishSetsHeaders(t *testing.T) {
	js := &mockJetStream{}
	p := newNATS(js, "backoffice-sync", zap.NewNop())
	env := syncedEnvelope(t)

	require.NoError(t, p.Publish(context.Background(), env))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, model.TopicCollectionSynced, msg.Subject)
	assert.Equal(t, "collection.synced", msg.Header.Get("event_type"))
	assert.Equal(t, "backoffice-sync", msg.Header.Get("service"))
	assert.Equal(t, env.ID.String(), msg.Header.Get(nats.MsgIdHdr))

	var decoded model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	var payload model.CollectionSynced
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "orders", payload.Collection)
	assert.Equal(t, 3, payload.Count)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	p := newNATS(&mockJetStream{fail: true}, "svc", nil)
	err := p.Publish(context.Background(), syncedEnvelope(t))
	assert.ErrorContains(t, err, "mock publish error")
	assert.NoError(t, p.Close())
}

// --- AMQP ---

func TestAMQPPublisher_PublishRoutesByTopic(t *testing.T) {
	ch := &mockChannel{}
	p := newAMQP(ch, DefaultExchange, "backoffice-sync", zap.NewNop())
	env := syncedEnvelope(t)

	require.NoError(t, p.Publish(context.Background(), env))
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, model.TopicCollectionSynced, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, env.ID.String(), got.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	p := newAMQP(&mockChannel{fail: true}, DefaultExchange, "svc", nil)
	assert.ErrorContains(t, p.Publish(context.Background(), syncedEnvelope(t)), "channel closed")
}

// --- Factory ---

func TestNew_NoneAndUnknown(t *testing.T) {
	p, err := New(Config{Bus: "none"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), syncedEnvelope(t)))

	_, err = New(Config{Bus: "kafka"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown bus")
}
