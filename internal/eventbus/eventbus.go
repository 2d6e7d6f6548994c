// Package eventbus publishes a best-effort audit event for every
// payment status transition onto Kafka, wiring
// segmentio/kafka-go — a dependency the teacher repo declared but never
// imported — into this service's audit trail. Publication failures are
// swallowed without being logged: the transition itself is already durably
// recorded in payments.status_check and the payment row, so this is a
// side-channel, never the system of record.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TransitionEvent is the audit record the poller publishes when a
// provider response changes a payment's status. The attempts-exhausted
// and abandoned-timeout transitions publish no event.
type TransitionEvent struct {
	PaymentID  int64  `json:"payment_id"`
	Provider   string `json:"provider"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// Publisher is satisfied both by *KafkaPublisher and by NoopPublisher,
// so the poller never has to branch on whether Kafka is configured.
type Publisher interface {
	PublishTransition(ctx context.Context, ev TransitionEvent)
	Close() error
}

// KafkaPublisher writes transition events to one topic via kafka-go's
// Writer, using kafka-go's LeastBytes balancer across KAFKA_BROKERS.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
		},
	}
}

func (p *KafkaPublisher) PublishTransition(ctx context.Context, ev TransitionEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Provider),
		Value: body,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when KAFKA_BROKERS or KAFKA_TRANSITIONS_TOPIC is
// empty.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransition(context.Context, TransitionEvent) {}
func (NoopPublisher) Close() error                                       { return nil }

// New returns a KafkaPublisher when both brokers and topic are non-empty,
// otherwise a NoopPublisher.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 || topic == "" {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}
