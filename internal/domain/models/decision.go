package models

import "time"

// DecisionPath tells which branch of a cycle produced a Decision.
type DecisionPath string

const (
	PathConsensus DecisionPath = "consensus"
	PathConflict  DecisionPath = "conflict"
	PathEmpty     DecisionPath = "empty"
)

// DefaultDecisionSize is the neutral sizing multiplier. Sizing is computed downstream.
const DefaultDecisionSize = 1.0

// Decision is the coordinator's output for one cycle.
type Decision struct {
	Action     SignalType   `json:"action"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
	Size       float64      `json:"size"`
	Agents     []string     `json:"agents"`
	Dissenters []string     `json:"dissenters"`
	Path       DecisionPath `json:"path"`
	DecidedAt  time.Time    `json:"decided_at"`
}

// HoldDecision builds the neutral safe-default decision.
func HoldDecision(reasoning string, agents []string) Decision {
	if agents == nil {
		agents = []string{}
	}
	return Decision{
		Action:     ActionHold,
		Confidence: 0,
		Reasoning:  reasoning,
		Size:       DefaultDecisionSize,
		Agents:     agents,
		Dissenters: []string{},
	}
}

// DecisionPayload is what goes out on the decision bus.
type DecisionPayload struct {
	Action             SignalType `json:"action"`
	Size               float64    `json:"size"`
	Confidence         float64    `json:"confidence"`
	ContributingAgents []string   `json:"contributing_agents"`
	DissentingAgents   []string   `json:"dissenting_agents"`
}

// Payload converts d into its bus representation.
func (d Decision) Payload() DecisionPayload {
	return DecisionPayload{
		Action:             d.Action,
		Size:               d.Size,
		Confidence:         d.Confidence,
		ContributingAgents: d.Agents,
		DissentingAgents:   d.Dissenters,
	}
}

// ConsensusResult is the weighted vote for one batch of signals.
type ConsensusResult struct {
	SignalType   SignalType             `json:"signal_type"`
	Ratio        float64                `json:"ratio"`
	Contributors []string               `json:"contributing_agents"`
	Weights      map[SignalType]float64 `json:"weights"`
	// Empty is set when there were no signals to weigh.
	Empty bool `json:"empty"`
}
