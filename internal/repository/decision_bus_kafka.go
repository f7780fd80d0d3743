package repository

import (
	"context"
	"fmt"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
)

// KafkaPublisher is the subset of pkg/kafka.Producer the bus needs.
type KafkaPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaDecisionBus publishes decisions to Kafka keyed by action, so every
// decision of one action lands on the same partition in order.
type KafkaDecisionBus struct {
	producer KafkaPublisher
}

// NewKafkaDecisionBus wraps producer.
func NewKafkaDecisionBus(producer KafkaPublisher) *KafkaDecisionBus {
	return &KafkaDecisionBus{producer: producer}
}

func (b *KafkaDecisionBus) Publish(ctx context.Context, topic string, payload models.DecisionPayload) error {
	if err := b.producer.Publish(ctx, topic, []byte(payload.Action), payload); err != nil {
		return fmt.Errorf("kafka decision bus: %w", err)
	}
	return nil
}

func (b *KafkaDecisionBus) Close() error {
	return b.producer.Close()
}

var _ domrepo.DecisionBus = (*KafkaDecisionBus)(nil)
