package usecase

import (
	"math"
	"time"

	"SignalCoord/internal/domain/models"
)

// DecayScaleSeconds is the e-folding time of a signal's weight. A 30 minute
// old signal keeps about 37% of its weight; several hours old is negligible.
const DecayScaleSeconds = 1800.0

// ReliabilityReader is the read side of the reliability table.
type ReliabilityReader interface {
	Score(agentID string) float64
}

// ConsensusCalculator turns a batch of signals into a weighted vote.
type ConsensusCalculator struct {
	reliability ReliabilityReader
	now         func() time.Time
}

// NewConsensusCalculator creates a calculator reading scores from r.
func NewConsensusCalculator(r ReliabilityReader) *ConsensusCalculator {
	return &ConsensusCalculator{reliability: r, now: time.Now}
}

// TimeDecay returns the weight multiplier of s evaluated at now.
func TimeDecay(s models.AgentSignal, now time.Time) float64 {
	if s.Timestamp == nil {
		return 1.0
	}
	age := now.Sub(*s.Timestamp).Seconds()
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / DecayScaleSeconds)
}

// Calculate weighs signals by confidence, reliability and recency. Ties on
// the winning weight resolve to the lexically smallest signal type.
func (c *ConsensusCalculator) Calculate(signals []models.AgentSignal) models.ConsensusResult {
	if len(signals) == 0 {
		return models.ConsensusResult{Empty: true, Weights: map[models.SignalType]float64{}}
	}
	now := c.now()

	weights := make(map[models.SignalType]float64)
	contributors := make(map[models.SignalType][]string)
	seen := make(map[models.SignalType]map[string]struct{})
	total := 0.0

	for _, s := range signals {
		rel := 1.0
		if c.reliability != nil {
			rel = c.reliability.Score(s.AgentID)
		}
		if rel < 0 || math.IsNaN(rel) {
			rel = 0
		}
		w := s.ClampedConfidence() * rel * TimeDecay(s, now)
		weights[s.SignalType] += w
		total += w

		if seen[s.SignalType] == nil {
			seen[s.SignalType] = make(map[string]struct{})
		}
		if _, dup := seen[s.SignalType][s.AgentID]; !dup {
			seen[s.SignalType][s.AgentID] = struct{}{}
			contributors[s.SignalType] = append(contributors[s.SignalType], s.AgentID)
		}
	}

	var best models.SignalType
	bestWeight := math.Inf(-1)
	for st, w := range weights {
		if w > bestWeight || (w == bestWeight && st < best) {
			best, bestWeight = st, w
		}
	}

	ratio := 0.0
	if total > 0 {
		ratio = math.Min(1, bestWeight/total)
	}

	return models.ConsensusResult{
		SignalType:   best,
		Ratio:        ratio,
		Contributors: contributors[best],
		Weights:      weights,
	}
}
