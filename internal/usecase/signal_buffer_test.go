package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalCoord/internal/domain/models"
)

func TestSignalBuffer_EvictsOldestOnOverflow(t *testing.T) {
	met := newFakeMetrics()
	b := NewSignalBuffer(0, met)
	require.Equal(t, DefaultBufferCapacity, b.Cap())

	for i := 0; i <= DefaultBufferCapacity; i++ {
		b.Add(sig(fmt.Sprintf("a%d", i), models.SignalBuy, 0.5))
	}
	assert.Equal(t, DefaultBufferCapacity, b.Len())
	assert.Equal(t, 1, met.evictions)

	got := b.Drain()
	require.Len(t, got, DefaultBufferCapacity)
	assert.Equal(t, "a1", got[0].AgentID)
	assert.Equal(t, fmt.Sprintf("a%d", DefaultBufferCapacity), got[len(got)-1].AgentID)
	assert.Equal(t, 0, b.Len())
}

func TestSignalBuffer_SnapshotDoesNotConsume(t *testing.T) {
	b := NewSignalBuffer(3, nil)
	b.Add(sig("a1", models.SignalBuy, 0.1))
	b.Add(sig("a2", models.SignalSell, 0.2))

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 2, b.Len())

	snap[0].AgentID = "changed"
	assert.Equal(t, "a1", b.Snapshot()[0].AgentID)
}

func TestSignalBuffer_WrapAroundKeepsOrder(t *testing.T) {
	b := NewSignalBuffer(3, nil)
	for i := 0; i < 7; i++ {
		b.Add(sig(fmt.Sprintf("a%d", i), models.SignalHold, 0))
	}
	got := b.Drain()
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.AgentID)
	}
	assert.Equal(t, []string{"a4", "a5", "a6"}, ids)
	assert.Empty(t, b.Drain())
}
