package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"SignalCoord/internal/domain/models"
)

func ptr(v float64) *float64 { return &v }

func TestTracker_DefaultsAndDecay(t *testing.T) {
	tr := NewReliabilityTracker(1.5)
	assert.Equal(t, DefaultScoreDecay, tr.Decay())
	assert.Equal(t, 1.0, tr.Score("unknown"))

	ctx := context.Background()
	assert.InDelta(t, 1.0, tr.Update(ctx, "a1", models.SignalBuy, models.SignalBuy), 1e-12)
	assert.InDelta(t, 0.95, tr.Update(ctx, "a2", models.SignalBuy, models.SignalSell), 1e-12)
	assert.InDelta(t, 0.9025, tr.Update(ctx, "a2", models.SignalBuy, models.SignalSell), 1e-12)
}

func TestTracker_ScoresStayBounded(t *testing.T) {
	tr := NewReliabilityTracker(0.5)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		ret := 0.02
		if i%2 == 0 {
			ret = 0.03
		}
		s := tr.UpdateWithReturn(ctx, "hot", models.SignalBuy, models.SignalBuy, &ret)
		require.GreaterOrEqual(t, s, 0.0)
		require.LessOrEqual(t, s, 2.0)
	}
	assert.InDelta(t, 2.0, tr.Score("hot"), 1e-9)

	for i := 0; i < 200; i++ {
		s := tr.Update(ctx, "cold", models.SignalBuy, models.SignalHold)
		require.GreaterOrEqual(t, s, 0.0)
	}
	assert.Less(t, tr.Score("cold"), 1e-9)
}

func TestTracker_RiskRatio(t *testing.T) {
	tr := NewReliabilityTracker(0.9, WithReturnsWindow(2))
	ctx := context.Background()

	tr.UpdateWithReturn(ctx, "a1", models.SignalBuy, models.SignalBuy, ptr(0.5))
	assert.Zero(t, tr.RiskRatio("a1"))

	tr.UpdateWithReturn(ctx, "a1", models.SignalBuy, models.SignalBuy, ptr(0.01))
	tr.UpdateWithReturn(ctx, "a1", models.SignalBuy, models.SignalBuy, ptr(0.03))
	// window of two keeps 0.01 and 0.03: mean 0.02, stddev 0.01
	assert.InDelta(t, 2.0, tr.RiskRatio("a1"), 1e-9)

	// losing history zeroes a correct call
	tr2 := NewReliabilityTracker(0.5)
	tr2.UpdateWithReturn(ctx, "a1", models.SignalBuy, models.SignalBuy, ptr(-0.01))
	s := tr2.UpdateWithReturn(ctx, "a1", models.SignalBuy, models.SignalBuy, ptr(-0.03))
	// second update: raw = 1*(1-2) clamps to 0
	assert.InDelta(t, 0.5, s, 1e-9)
}

func TestTracker_PersistsAndRestores(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, mock.MatchedBy(func(s models.ReliabilitySnapshot) bool {
		return s.Scores["a1"] > 0
	})).Return(nil).Once()

	met := newFakeMetrics()
	tr := NewReliabilityTracker(0.95, WithReliabilityStore(store), WithTrackerMetrics(met))
	tr.Update(context.Background(), "a1", models.SignalBuy, models.SignalSell)
	store.AssertExpectations(t)
	assert.InDelta(t, 0.95, met.reliability["a1"], 1e-12)

	load := &mockStore{}
	load.On("Load", mock.Anything).Return(models.ReliabilitySnapshot{
		Scores:  map[string]float64{"a1": 0.4, "bad": -1},
		Returns: map[string][]float64{"a1": {0.1, 0.2}},
	}, true, nil).Once()

	restored := NewReliabilityTracker(0.95, WithReliabilityStore(load))
	require.NoError(t, restored.Load(context.Background()))
	assert.Equal(t, 0.4, restored.Score("a1"))
	assert.Equal(t, 1.0, restored.Score("bad"))
	assert.Greater(t, restored.RiskRatio("a1"), 0.0)
}

func TestTracker_PersistFailureIsCounted(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	met := newFakeMetrics()

	tr := NewReliabilityTracker(0.95, WithReliabilityStore(store), WithTrackerMetrics(met))
	s := tr.Update(context.Background(), "a1", models.SignalBuy, models.SignalBuy)
	assert.InDelta(t, 1.0, s, 1e-12)
	assert.Equal(t, 1, met.errorCount("reliability_persist"))
}

func TestTracker_LoadWithoutStore(t *testing.T) {
	assert.NoError(t, NewReliabilityTracker(0.95).Load(context.Background()))
}

// gatedStore blocks the first Save until release is closed.
type gatedStore struct {
	mu      sync.Mutex
	gated   bool
	saves   []models.ReliabilitySnapshot
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Save(_ context.Context, snap models.ReliabilitySnapshot) error {
	g.mu.Lock()
	first := !g.gated
	g.gated = true
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.saves = append(g.saves, snap)
	g.mu.Unlock()
	return nil
}

func (g *gatedStore) Load(context.Context) (models.ReliabilitySnapshot, bool, error) {
	return models.ReliabilitySnapshot{}, false, nil
}

func (g *gatedStore) lastSaved() models.ReliabilitySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves[len(g.saves)-1]
}

func TestTracker_SlowSaveDoesNotLoseLaterUpdate(t *testing.T) {
	store := newGatedStore()
	tr := NewReliabilityTracker(0.5, WithReliabilityStore(store))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tr.Update(ctx, "a", models.SignalBuy, models.SignalSell)
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		tr.Update(ctx, "b", models.SignalBuy, models.SignalSell)
	}()
	require.Eventually(t, func() bool { return tr.Score("b") == 0.5 }, time.Second, time.Millisecond)

	close(store.release)
	wg.Wait()

	assert.Equal(t, map[string]float64{"a": 0.5, "b": 0.5}, store.lastSaved().Scores)
	assert.Equal(t, tr.Snapshot(), store.lastSaved().Scores)
}

func TestTracker_StepBoundedByDecay(t *testing.T) {
	ctx := context.Background()
	outcomes := []models.SignalType{models.SignalBuy, models.SignalSell, models.SignalBuy, models.SignalBuy, models.SignalHold}
	returns := []float64{0.04, -0.02, 0.03, 0.05, -0.01, 0.02}

	for _, decay := range []float64{0.5, 0.8, 0.95, 0.99} {
		tr := NewReliabilityTracker(decay)
		bound := (1-decay)*maxRawReliability + 1e-12
		for i := 0; i < 300; i++ {
			prev := tr.Score("a1")
			ret := returns[i%len(returns)]
			next := tr.UpdateWithReturn(ctx, "a1", models.SignalBuy, outcomes[i%len(outcomes)], &ret)
			require.LessOrEqual(t, math.Abs(next-prev), bound, "decay %v step %d", decay, i)
			require.GreaterOrEqual(t, next, 0.0)
			require.LessOrEqual(t, next, maxRawReliability)
		}
	}
}
