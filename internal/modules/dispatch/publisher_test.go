package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)

	require.NoError(t, p.PublishPlans(context.Background(), "run-1", samplePlans()))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "run-1:1", string(w.msgs[1].Key))
	assert.Equal(t, EventPlanCreated, string(w.msgs[0].Headers[0].Value))

	var evt PlanEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
	assert.Equal(t, EventPlanCreated, evt.Type)
	assert.Equal(t, "run-1", evt.RunID)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, samplePlans()[0].RequestIDs, evt.Plan.RequestIDs)

	require.NoError(t, p.PublishPlans(context.Background(), "run-2", nil))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	err := newKafkaPublisher(w, nil).PublishPlans(context.Background(), "run-1", samplePlans())
	assert.EqualError(t, err, "leader not available")
}

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher(ch, "dispatch")

	require.NoError(t, p.PublishPlans(context.Background(), "run-1", samplePlans()))
	require.Len(t, ch.sent, 2)
	assert.Equal(t, "dispatch", ch.sent[0].exchange)
	assert.Equal(t, EventPlanCreated, ch.sent[0].key)
	assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)

	var evt PlanEvent
	require.NoError(t, json.Unmarshal(ch.sent[1].msg.Body, &evt))
	assert.Equal(t, 1, evt.Plan.ClusterID)
	assert.Equal(t, evt.ID, ch.sent[1].msg.MessageId)
}

func TestAMQPPublisher_Error(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	err := NewAMQPPublisher(ch, "dispatch").PublishPlans(context.Background(), "run-1", samplePlans())
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Contains(t, err.Error(), "cluster 0")
}
