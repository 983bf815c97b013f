package subscriber

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/jnst/convention-outbox/internal/model"
)

// KafkaBroadcasterID is the subscription id of KafkaBroadcaster.
const KafkaBroadcasterID model.SubscriptionID = "broadcast-convention-kafka"

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaBroadcaster copies convention events to a Kafka topic, keyed by
// convention id so that events of one convention share a partition.
type KafkaBroadcaster struct {
	writer MessageWriter
	topic  string
}

// NewKafkaWriter creates a writer for brokers.
func NewKafkaWriter(brokers []string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka writer requires at least one broker")
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, nil
}

// NewKafkaBroadcaster creates a broadcaster writing to topic.
func NewKafkaBroadcaster(writer MessageWriter, topic string) *KafkaBroadcaster {
	return &KafkaBroadcaster{
		writer: writer,
		topic:  topic,
	}
}

// Handle writes one message per event.
func (b *KafkaBroadcaster) Handle(ctx context.Context, payload model.ConventionPayload, event *model.DomainEvent) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: b.topic,
		Key:   []byte(payload.Convention.ID),
		Value: event.Payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "topic", Value: []byte(event.Topic)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write event %s to kafka topic %s: %w", event.ID, b.topic, err)
	}

	return nil
}
