package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventPlanCreated = "dispatch.plan.created"
	eventSource      = "datastar-dispatch"
)

// PlanEvent announces one stored plan to downstream consumers.
type PlanEvent struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Source     string     `json:"source"`
	OccurredAt time.Time  `json:"occurred_at"`
	RunID      string     `json:"run_id"`
	Plan       PlanRecord `json:"plan"`
}

func NewPlanEvent(runID string, plan PlanRecord) PlanEvent {
	return PlanEvent{
		ID:         uuid.NewString(),
		Type:       EventPlanCreated,
		Source:     eventSource,
		OccurredAt: time.Now().UTC(),
		RunID:      runID,
		Plan:       plan,
	}
}

func (e PlanEvent) key() string {
	return e.RunID + ":" + strconv.Itoa(e.Plan.ClusterID)
}

type Publisher interface {
	PublishPlans(ctx context.Context, runID string, plans []PlanRecord) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) PublishPlans(context.Context, string, []PlanRecord) error { return nil }
func (NopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per plan, keyed by run and cluster.
type KafkaPublisher struct {
	w   messageWriter
	log *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newKafkaPublisher(w, log)
}

func newKafkaPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{w: w, log: log}
}

func (p *KafkaPublisher) PublishPlans(ctx context.Context, runID string, plans []PlanRecord) error {
	if len(plans) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(plans))
	for _, plan := range plans {
		evt := NewPlanEvent(runID, plan)
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode plan event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.key()),
			Value: body,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(evt.Type)},
			},
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("failed to publish plans", zap.String("run_id", runID), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a topic exchange.
type AMQPPublisher struct {
	ch       amqpChannel
	exchange string
	timeout  time.Duration
}

func NewAMQPPublisher(ch amqpChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, timeout: 5 * time.Second}
}

func (p *AMQPPublisher) PublishPlans(ctx context.Context, runID string, plans []PlanRecord) error {
	for _, plan := range plans {
		evt := NewPlanEvent(runID, plan)
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode plan event: %w", err)
		}
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		err = p.ch.PublishWithContext(pctx, p.exchange, evt.Type, false, false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    evt.ID,
			Type:         evt.Type,
			Timestamp:    evt.OccurredAt,
			Body:         body,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("publish plan for cluster %d: %w", plan.ClusterID, err)
		}
	}
	return nil
}

func (p *AMQPPublisher) Close() error { return p.ch.Close() }
