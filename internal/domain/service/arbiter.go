package service

import (
	"context"

	"SignalCoord/internal/domain/models"
)

// ArbitrationRequest is what the conflict resolver hands to the oracle.
type ArbitrationRequest struct {
	Prompt      string               `json:"prompt"`
	Signals     []models.AgentSignal `json:"signals"`
	Reliability map[string]float64   `json:"reliability"`
}

// ArbitrationVerdict is the oracle's parsed answer.
type ArbitrationVerdict struct {
	Action     models.SignalType `json:"action"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
}

// Arbiter is the external decision service consulted on unresolved conflicts.
// Implementations must honor ctx cancellation; callers still bound the call.
type Arbiter interface {
	Arbitrate(ctx context.Context, req ArbitrationRequest) (ArbitrationVerdict, error)
}
