// Package kafka publishes indexing events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/clidram/medrag/pkg/eventstream"
)

// Publisher writes record-indexed events to a Kafka topic. Messages are
// keyed by source kind and id so re-index events for the same record land
// on the same partition in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishRecord serializes the event as JSON and writes it to the topic.
func (p *Publisher) PublishRecord(ctx context.Context, event *eventstream.RecordIndexedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", event.SourceKind, event.SourceID)),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.EventID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
