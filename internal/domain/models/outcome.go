package models

// Outcome is a realized result for a previously emitted signal, reported by
// post-trade settlement.
type Outcome struct {
	AgentID   string
	Predicted SignalType
	Realized  SignalType
	// Return is the realized return of the trade, if known. It feeds the
	// risk-adjustment history of the agent.
	Return *float64
}

// CoordinatorMetrics is a read-only snapshot of process-lifetime counters.
type CoordinatorMetrics struct {
	// ConsensusCount and ConflictCount are raw accumulating counts.
	ConsensusCount int64 `json:"consensus_count"`
	ConflictCount  int64 `json:"conflict_count"`
	EmptyCount     int64 `json:"empty_count"`
	// ConsensusRate and ConflictRate are the counts normalized by all decisions.
	ConsensusRate float64 `json:"consensus_rate"`
	ConflictRate  float64 `json:"conflict_rate"`
	// DecisionAccuracy is reserved and not computed.
	DecisionAccuracy float64            `json:"decision_accuracy"`
	AvgDecisionTime  float64            `json:"avg_decision_time_seconds"`
	AgentReliability map[string]float64 `json:"agent_reliability"`
}

// ReliabilitySnapshot is the persisted form of the reliability table.
type ReliabilitySnapshot struct {
	Scores  map[string]float64   `json:"scores"`
	Returns map[string][]float64 `json:"returns,omitempty"`
}
