package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	applogger "SignalCoord/pkg/logger"
)

const (
	DefaultScoreDecay    = 0.95
	DefaultReturnsWindow = 50

	defaultReliability = 1.0
	maxRawReliability  = 2.0
)

// ReliabilityTracker owns the per-agent reliability table. It is the only
// writer of that table; the consensus calculator reads it through Score and
// Snapshot.
type ReliabilityTracker struct {
	mu sync.RWMutex
	// persistMu orders snapshot-and-save so a stale table never lands last.
	persistMu sync.Mutex

	decay   float64
	window  int
	scores  map[string]float64
	returns map[string][]float64

	store   domrepo.ReliabilityStore
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

// TrackerOption configures ReliabilityTracker.
type TrackerOption func(*ReliabilityTracker)

// WithReturnsWindow sets how many realized returns per agent feed the risk ratio.
func WithReturnsWindow(n int) TrackerOption {
	return func(t *ReliabilityTracker) {
		if n > 1 {
			t.window = n
		}
	}
}

// WithReliabilityStore persists the table after every update.
func WithReliabilityStore(s domrepo.ReliabilityStore) TrackerOption {
	return func(t *ReliabilityTracker) { t.store = s }
}

// WithTrackerMetrics mirrors scores into the metrics recorder.
func WithTrackerMetrics(m domrepo.Metrics) TrackerOption {
	return func(t *ReliabilityTracker) { t.metrics = m }
}

// WithTrackerLogger sets the logger used for persistence failures.
func WithTrackerLogger(l *applogger.Logger) TrackerOption {
	return func(t *ReliabilityTracker) { t.logger = l }
}

// NewReliabilityTracker creates a tracker. decay must lie in (0,1); anything
// else falls back to DefaultScoreDecay.
func NewReliabilityTracker(decay float64, opts ...TrackerOption) *ReliabilityTracker {
	if !(decay > 0 && decay < 1) {
		decay = DefaultScoreDecay
	}
	t := &ReliabilityTracker{
		decay:   decay,
		window:  DefaultReturnsWindow,
		scores:  make(map[string]float64),
		returns: make(map[string][]float64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Decay returns the configured blend factor.
func (t *ReliabilityTracker) Decay() float64 { return t.decay }

// Score returns the reliability of agentID, 1.0 for agents never updated.
func (t *ReliabilityTracker) Score(agentID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scoreLocked(agentID)
}

func (t *ReliabilityTracker) scoreLocked(agentID string) float64 {
	if s, ok := t.scores[agentID]; ok {
		return s
	}
	return defaultReliability
}

// Snapshot returns a copy of all known scores.
func (t *ReliabilityTracker) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.scores))
	for k, v := range t.scores {
		out[k] = v
	}
	return out
}

// Update blends one realized outcome into the agent's score:
//
//	new = decay*old + (1-decay)*clamp(accuracy*(1+riskRatio), 0, 2)
func (t *ReliabilityTracker) Update(ctx context.Context, agentID string, predicted, realized models.SignalType) float64 {
	return t.UpdateWithReturn(ctx, agentID, predicted, realized, nil)
}

// UpdateWithReturn is Update with an optional realized return appended to the
// agent's performance history before the risk ratio is computed.
func (t *ReliabilityTracker) UpdateWithReturn(ctx context.Context, agentID string, predicted, realized models.SignalType, ret *float64) float64 {
	t.mu.Lock()
	if ret != nil && !math.IsNaN(*ret) && !math.IsInf(*ret, 0) {
		h := append(t.returns[agentID], *ret)
		if len(h) > t.window {
			h = append([]float64(nil), h[len(h)-t.window:]...)
		}
		t.returns[agentID] = h
	}

	accuracy := 0.0
	if predicted == realized {
		accuracy = 1.0
	}
	raw := accuracy * (1 + riskRatio(t.returns[agentID]))
	raw = math.Max(0, math.Min(maxRawReliability, raw))

	prev := t.scoreLocked(agentID)
	next := t.decay*prev + (1-t.decay)*raw
	t.scores[agentID] = next
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordAgentReliability(agentID, next)
	}
	if t.store != nil {
		t.persist(ctx)
	}
	return next
}

// RiskRatio returns mean/stddev of the agent's recorded returns, 0 when
// there is not enough history.
func (t *ReliabilityTracker) RiskRatio(agentID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return riskRatio(t.returns[agentID])
}

func riskRatio(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(rets)))
	if std == 0 {
		return 0
	}
	return mean / std
}

// Load restores the table from the configured store, if any.
func (t *ReliabilityTracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	snap, ok, err := t.store.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		t.Restore(snap)
	}
	return nil
}

// Restore replaces the table with snap. Negative scores are dropped.
func (t *ReliabilityTracker) Restore(snap models.ReliabilitySnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores = make(map[string]float64, len(snap.Scores))
	for k, v := range snap.Scores {
		if v >= 0 && !math.IsNaN(v) {
			t.scores[k] = v
		}
	}
	t.returns = make(map[string][]float64, len(snap.Returns))
	for k, v := range snap.Returns {
		if len(v) > t.window {
			v = v[len(v)-t.window:]
		}
		t.returns[k] = append([]float64(nil), v...)
	}
}

func (t *ReliabilityTracker) snapshotLocked() models.ReliabilitySnapshot {
	snap := models.ReliabilitySnapshot{
		Scores:  make(map[string]float64, len(t.scores)),
		Returns: make(map[string][]float64, len(t.returns)),
	}
	for k, v := range t.scores {
		snap.Scores[k] = v
	}
	for k, v := range t.returns {
		snap.Returns[k] = append([]float64(nil), v...)
	}
	return snap
}

// persist saves the current table. The snapshot is taken after persistMu is
// held, so each save is at least as new as every save before it.
func (t *ReliabilityTracker) persist(ctx context.Context) {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.RLock()
	snap := t.snapshotLocked()
	t.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := t.store.Save(ctx, snap); err != nil {
		if t.metrics != nil {
			t.metrics.RecordError("reliability_persist")
		}
		if t.logger != nil {
			t.logger.Warn("reliability snapshot not persisted", applogger.Error(err))
		}
	}
}
