package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	pkgkafka "SignalCoord/pkg/kafka"
)

// OutcomeRecorder applies settled outcomes to reliability scores.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o models.Outcome) float64
}

// KafkaOutcomesHandler consumes post-trade settlement outcomes.
type KafkaOutcomesHandler struct {
	topic    string
	recorder OutcomeRecorder
	metrics  domrepo.Metrics
}

func NewKafkaOutcomesHandler(topic string, recorder OutcomeRecorder, metrics domrepo.Metrics) *KafkaOutcomesHandler {
	return &KafkaOutcomesHandler{topic: topic, recorder: recorder, metrics: metrics}
}

func (h *KafkaOutcomesHandler) Topic() string { return h.topic }

// incoming message schema: {agent_id, predicted, realized, return?}
func (h *KafkaOutcomesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		AgentID   string   `json:"agent_id"`
		Predicted string   `json:"predicted"`
		Realized  string   `json:"realized"`
		Return    *float64 `json:"return"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("outcome_unmarshal")
		return err
	}
	pred, okP := models.ParseSignalType(m.Predicted)
	realized, okR := models.ParseSignalType(m.Realized)
	if m.AgentID == "" || !okP || !okR {
		h.recordError("outcome_invalid")
		return fmt.Errorf("invalid outcome agent=%q predicted=%q realized=%q", m.AgentID, m.Predicted, m.Realized)
	}
	h.recorder.RecordOutcome(ctx, models.Outcome{
		AgentID:   m.AgentID,
		Predicted: pred,
		Realized:  realized,
		Return:    m.Return,
	})
	return nil
}

func (h *KafkaOutcomesHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaOutcomesHandler)(nil)
