package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	mid "SignalCoord/internal/middleware"
	pkgkafka "SignalCoord/pkg/kafka"
)

// KafkaSignalsHandler consumes agent signals from Kafka into the signal sink.
type KafkaSignalsHandler struct {
	topic   string
	sink    domrepo.SignalSink
	metrics domrepo.Metrics
}

func NewKafkaSignalsHandler(topic string, sink domrepo.SignalSink, metrics domrepo.Metrics) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// incoming message schema: AgentSignal wire record
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var s models.AgentSignal
	if err := json.Unmarshal(b, &s); err != nil {
		h.recordError("signal_unmarshal")
		return err
	}
	err := h.sink.Submit(ctx, s)
	if errors.Is(err, mid.ErrThrottled) {
		// dropped on purpose; retrying would only hit the limiter again
		return nil
	}
	if err != nil {
		h.recordError("signal_rejected")
		return fmt.Errorf("submit signal: %w", err)
	}
	return nil
}

func (h *KafkaSignalsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
