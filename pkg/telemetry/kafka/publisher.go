// Package kafka publishes lifecycle events to a Kafka topic for
// deployments that fan telemetry out beyond the cache store.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/strata/pkg/telemetry"
)

// Config holds Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes lifecycle events to Kafka. Events are keyed by
// session so all events for one session land on one partition, in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(c.Brokers...),
		Topic:    c.Topic,
		Balancer: &kafka.Hash{},
	}

	return &Publisher{writer: writer}, nil
}

// Publish writes one event.
func (p *Publisher) Publish(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return telemetry.ErrNilEvent
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling lifecycle event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: body,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing lifecycle event: %w", err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
