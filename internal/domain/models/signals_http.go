package models

import "time"

// Requests for coordinator HTTP endpoints. Defined in domain for consistency and reuse.

type SignalRequest struct {
	AgentID    string         `json:"agent_id" validate:"required,max=128"`
	SignalType string         `json:"signal_type" validate:"required,oneofci=buy sell hold risk_up risk_down"`
	Confidence float64        `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning  string         `json:"reasoning" validate:"max=4096"`
	Metadata   map[string]any `json:"metadata"`
}

type SignalBatchRequest struct {
	Signals []SignalRequest `json:"signals" validate:"required,max=1000,dive"`
}

// DecisionRequest runs a cycle over an explicit batch; an empty batch is valid.
type DecisionRequest struct {
	Signals []SignalRequest `json:"signals" validate:"max=1000,dive"`
}

type OutcomeRequest struct {
	AgentID   string   `json:"agent_id" validate:"required"`
	Predicted string   `json:"predicted" validate:"required,oneofci=buy sell hold risk_up risk_down"`
	Realized  string   `json:"realized" validate:"required,oneofci=buy sell hold risk_up risk_down"`
	Return    *float64 `json:"return"`
}

type RecentDecisionsRequest struct {
	N int `query:"n" json:"n" default:"20" validate:"gte=1,lte=500"`
}

// ToSignal converts the request into a domain signal.
func (r SignalRequest) ToSignal() (AgentSignal, error) {
	raw := agentSignalJSON{
		AgentID:    r.AgentID,
		SignalType: r.SignalType,
		Confidence: r.Confidence,
		Reasoning:  r.Reasoning,
		Metadata:   r.Metadata,
	}
	var s AgentSignal
	if err := s.fromWire(raw); err != nil {
		return AgentSignal{}, err
	}
	return s, nil
}

// ToOutcome converts the request into a domain outcome.
func (r OutcomeRequest) ToOutcome() Outcome {
	pred, _ := ParseSignalType(r.Predicted)
	realized, _ := ParseSignalType(r.Realized)
	return Outcome{AgentID: r.AgentID, Predicted: pred, Realized: realized, Return: r.Return}
}

// StatusResponse is a small envelope for intake acknowledgements.
type StatusResponse struct {
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Buffered   int       `json:"buffered"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutcomeResponse reports the agent's score after an outcome was applied.
type OutcomeResponse struct {
	AgentID     string  `json:"agent_id"`
	Reliability float64 `json:"reliability"`
}

// BufferResponse describes the pending signal buffer.
type BufferResponse struct {
	Pending  int           `json:"pending"`
	Capacity int           `json:"capacity"`
	Signals  []AgentSignal `json:"signals,omitempty"`
}
