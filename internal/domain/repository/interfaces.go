package repository

import (
	"context"

	"SignalCoord/internal/domain/models"
)

// DecisionBus is the publish sink for finalized decisions.
type DecisionBus interface {
	Publish(ctx context.Context, topic string, payload models.DecisionPayload) error
	Close() error
}

// ReliabilityStore persists the reliability table between process restarts.
type ReliabilityStore interface {
	Save(ctx context.Context, snap models.ReliabilitySnapshot) error
	Load(ctx context.Context) (models.ReliabilitySnapshot, bool, error)
}

// SignalSink accepts signals from intake transports.
type SignalSink interface {
	Submit(ctx context.Context, signal models.AgentSignal) error
}

type Metrics interface {
	RecordDecision(path string, seconds float64)
	RecordAgentReliability(agentID string, score float64)
	RecordBufferEviction()
	RecordArbiterFailure(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
