package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"SignalCoord/internal/domain/models"
	domsvc "SignalCoord/internal/domain/service"
)

func TestCycleRunner_TickSkipsEmptyBuffer(t *testing.T) {
	c := newTestCoordinator(CoordinatorDeps{})
	r := NewCycleRunner(c, time.Second, nil)

	assert.False(t, r.Tick(context.Background()))
	assert.Empty(t, c.RecentDecisions(1))

	c.AddSignal(sig("a1", models.SignalBuy, 0.5))
	assert.True(t, r.Tick(context.Background()))
	assert.Zero(t, c.Buffer().Len())
	assert.Len(t, c.RecentDecisions(1), 1)
}

func TestCycleRunner_RunsOnInterval(t *testing.T) {
	c := newTestCoordinator(CoordinatorDeps{})
	r := NewCycleRunner(c, 10*time.Millisecond, nil)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))

	c.AddSignal(sig("a1", models.SignalBuy, 0.9))
	c.AddSignal(sig("a2", models.SignalBuy, 0.9))
	c.AddSignal(sig("a3", models.SignalBuy, 0.9))

	assert.Eventually(t, func() bool { return len(c.RecentDecisions(5)) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	require.NoError(t, r.Shutdown(ctx))
}

func TestCycleRunner_DisabledIsNoop(t *testing.T) {
	r := NewCycleRunner(newTestCoordinator(CoordinatorDeps{}), 0, nil)
	assert.False(t, r.Enabled())
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestCycleRunner_InFlightCycleSurvivesParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	entered := make(chan struct{})
	arb := arbiterFunc(func(ctx context.Context, _ domsvc.ArbitrationRequest) (domsvc.ArbitrationVerdict, error) {
		close(entered)
		<-parent.Done()
		if err := ctx.Err(); err != nil {
			return domsvc.ArbitrationVerdict{}, err
		}
		return domsvc.ArbitrationVerdict{Action: models.SignalSell, Confidence: 0.8, Reasoning: "oracle"}, nil
	})
	bus := &mockBus{}
	bus.On("Publish", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }),
		FinalDecisionTopic, mock.Anything).Return(nil).Once()

	c := newTestCoordinator(CoordinatorDeps{Arbiter: arb, Bus: bus})
	r := NewCycleRunner(c, 5*time.Millisecond, nil)
	require.NoError(t, r.Start(parent))

	// one agent is below the minimum, so the cycle escalates
	c.AddSignal(sig("a1", models.SignalBuy, 0.9))
	<-entered
	cancelParent()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	recent := c.RecentDecisions(1)
	require.Len(t, recent, 1)
	assert.Equal(t, models.SignalSell, recent[0].Action)
	assert.Equal(t, models.PathConflict, recent[0].Path)
	bus.AssertExpectations(t)
}
