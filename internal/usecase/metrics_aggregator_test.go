package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SignalCoord/internal/domain/models"
)

func TestMetricsAggregator_CountsAndRates(t *testing.T) {
	met := newFakeMetrics()
	m := NewMetricsAggregator(met)

	m.Record(models.PathConsensus, time.Second)
	m.Record(models.PathConsensus, 0)
	m.Record(models.PathConflict, 0)
	m.Record(models.PathEmpty, 0)

	s := m.Snapshot(nil)
	assert.EqualValues(t, 2, s.ConsensusCount)
	assert.EqualValues(t, 1, s.ConflictCount)
	assert.EqualValues(t, 1, s.EmptyCount)
	assert.InDelta(t, 0.5, s.ConsensusRate, 1e-12)
	assert.InDelta(t, 0.25, s.ConflictRate, 1e-12)
	assert.NotNil(t, s.AgentReliability)
	assert.Zero(t, s.DecisionAccuracy)
	// 1s then three zero samples through a 0.1 EMA
	assert.InDelta(t, 0.1*0.9*0.9*0.9, s.AvgDecisionTime, 1e-12)
	assert.Equal(t, 2, met.decisions["consensus"])
}

func TestMetricsAggregator_EmptySnapshot(t *testing.T) {
	s := NewMetricsAggregator(nil).Snapshot(map[string]float64{"a1": 0.7})
	assert.Zero(t, s.ConsensusRate)
	assert.Equal(t, 0.7, s.AgentReliability["a1"])
}
