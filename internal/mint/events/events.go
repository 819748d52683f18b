// Package events publishes mint lifecycle events after the ledger change they
// describe has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"mintgate/internal/mint/models"
	"mintgate/internal/platform/kafka/producer"
)

// DefaultTopic receives every mint lifecycle event.
const DefaultTopic = "mintgate.mints"

// Producer is the subset of the Kafka producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Kafka publishes events keyed by wallet so one wallet's events stay ordered
// within a partition.
type Kafka struct {
	producer Producer
	topic    string
}

func NewKafka(p Producer, topic string) *Kafka {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, event models.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return k.producer.Produce(ctx, &producer.Message{
		Topic:     k.topic,
		Key:       []byte(event.WalletAddress),
		Value:     value,
		Timestamp: event.OccurredAt,
		Headers: map[string]string{
			"event_type":   string(event.Type),
			"reference_id": event.ReferenceID,
		},
	})
}

// Noop discards events; used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, models.Event) error { return nil }
