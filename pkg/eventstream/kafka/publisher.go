// Package kafka publishes memory lifecycle events to a Kafka topic. Events
// are keyed by chat id so each chat's lifecycle stays in partition order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/reveriehq/reverie/pkg/eventstream"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "reverie.memory"

// Config holds the Kafka publisher settings.
type Config struct {
	// Brokers is the bootstrap broker list.
	Brokers []string

	// Topic receives the events. Defaults to DefaultTopic.
	Topic string
}

// Publisher writes memory events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}

	return &Publisher{writer: writer}, nil
}

// Publish writes one event, keyed by chat id.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling memory event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ChatID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("writing memory event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
