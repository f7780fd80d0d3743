package usecase

import (
	"sync"
	"time"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
)

// latencySmoothing is the weight of the newest sample in the latency EMA.
const latencySmoothing = 0.1

// MetricsAggregator keeps process-lifetime decision statistics. Counters are
// never reset.
type MetricsAggregator struct {
	mu        sync.Mutex
	consensus int64
	conflict  int64
	empty     int64
	avgTime   float64
	recorder  domrepo.Metrics
}

// NewMetricsAggregator creates an aggregator that also mirrors to recorder
// when it is non-nil.
func NewMetricsAggregator(recorder domrepo.Metrics) *MetricsAggregator {
	return &MetricsAggregator{recorder: recorder}
}

// Record accounts one finished cycle.
func (m *MetricsAggregator) Record(path models.DecisionPath, elapsed time.Duration) {
	secs := elapsed.Seconds()
	m.mu.Lock()
	switch path {
	case models.PathConsensus:
		m.consensus++
	case models.PathConflict:
		m.conflict++
	default:
		m.empty++
	}
	m.avgTime = m.avgTime*(1-latencySmoothing) + secs*latencySmoothing
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordDecision(string(path), secs)
	}
}

// Snapshot returns the counters together with the given reliability table.
func (m *MetricsAggregator) Snapshot(reliability map[string]float64) models.CoordinatorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := models.CoordinatorMetrics{
		ConsensusCount:   m.consensus,
		ConflictCount:    m.conflict,
		EmptyCount:       m.empty,
		AvgDecisionTime:  m.avgTime,
		AgentReliability: reliability,
	}
	if total := m.consensus + m.conflict + m.empty; total > 0 {
		out.ConsensusRate = float64(m.consensus) / float64(total)
		out.ConflictRate = float64(m.conflict) / float64(total)
	}
	if out.AgentReliability == nil {
		out.AgentReliability = map[string]float64{}
	}
	return out
}
