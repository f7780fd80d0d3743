package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"SignalCoord/pkg/util"
)

// SignalType is an action an agent can vote for.
type SignalType string

const (
	SignalBuy      SignalType = "buy"
	SignalSell     SignalType = "sell"
	SignalHold     SignalType = "hold"
	SignalRiskUp   SignalType = "risk_up"
	SignalRiskDown SignalType = "risk_down"
)

// ActionHold is the neutral no-op action used when no actionable outcome exists.
const ActionHold = SignalHold

var knownSignalTypes = map[SignalType]struct{}{
	SignalBuy:      {},
	SignalSell:     {},
	SignalHold:     {},
	SignalRiskUp:   {},
	SignalRiskDown: {},
}

// ParseSignalType normalizes s and reports whether it names a known action.
func ParseSignalType(s string) (SignalType, bool) {
	st := SignalType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := knownSignalTypes[st]
	return st, ok
}

// Valid reports whether t is one of the known actions.
func (t SignalType) Valid() bool {
	_, ok := knownSignalTypes[t]
	return ok
}

// AgentSignal is one agent's opinion at a point in time. It is never mutated
// after creation.
type AgentSignal struct {
	AgentID    string
	SignalType SignalType
	Confidence float64
	Reasoning  string
	// Timestamp is the emission time; nil means "current" and disables decay.
	Timestamp *time.Time
	// Extra carries opaque metadata that is passed through but never interpreted.
	Extra map[string]any
}

// ClampedConfidence returns the confidence bounded to [0,1] for arithmetic.
func (s AgentSignal) ClampedConfidence() float64 {
	return Clamp01(s.Confidence)
}

// wire form: flat record with an open metadata bag.
type agentSignalJSON struct {
	AgentID    string         `json:"agent_id"`
	SignalType string         `json:"signal_type"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON writes the flat wire record; Timestamp goes to metadata.timestamp
// as seconds since epoch.
func (s AgentSignal) MarshalJSON() ([]byte, error) {
	out := agentSignalJSON{
		AgentID:    s.AgentID,
		SignalType: string(s.SignalType),
		Confidence: s.Confidence,
		Reasoning:  s.Reasoning,
	}
	if len(s.Extra) > 0 || s.Timestamp != nil {
		out.Metadata = make(map[string]any, len(s.Extra)+1)
		for k, v := range s.Extra {
			out.Metadata[k] = v
		}
		if s.Timestamp != nil {
			out.Metadata["timestamp"] = float64(s.Timestamp.UnixNano()) / float64(time.Second)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire record. metadata.timestamp may be a number
// of seconds, a numeric string or an RFC3339 string.
func (s *AgentSignal) UnmarshalJSON(b []byte) error {
	var in agentSignalJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	return s.fromWire(in)
}

func (s *AgentSignal) fromWire(in agentSignalJSON) error {
	*s = AgentSignal{
		AgentID:    in.AgentID,
		SignalType: SignalType(strings.ToLower(strings.TrimSpace(in.SignalType))),
		Confidence: in.Confidence,
		Reasoning:  in.Reasoning,
	}
	for k, v := range in.Metadata {
		if k == "timestamp" {
			if v == nil {
				continue
			}
			ts, ok := util.ParseEpochAny(v)
			if !ok {
				return fmt.Errorf("metadata.timestamp: unsupported value %v", v)
			}
			s.Timestamp = &ts
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[k] = v
	}
	return nil
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
