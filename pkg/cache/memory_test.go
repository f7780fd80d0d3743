package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type snap struct {
		Scores map[string]float64 `json:"scores"`
	}
	require.NoError(t, mc.Set(ctx, "reliability:snapshot", snap{Scores: map[string]float64{"a1": 0.9}}, 0))

	var got snap
	require.NoError(t, mc.Get(ctx, "reliability:snapshot", &got))
	assert.InDelta(t, 0.9, got.Scores["a1"], 1e-12)

	var raw string
	require.NoError(t, mc.Get(ctx, "reliability:snapshot", &raw))
	assert.JSONEq(t, `{"scores":{"a1":0.9}}`, raw)
}

func TestMemoryCache_MissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	mc.now = func() time.Time { return now }

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "nope", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "k", "v", time.Minute))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	now = now.Add(time.Second)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s)) // touch a
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "reliability:snapshot", GenerateKey("reliability", "snapshot"))
	assert.Equal(t, "a:1:x", GenerateKey("a", 1, "x"))
}
