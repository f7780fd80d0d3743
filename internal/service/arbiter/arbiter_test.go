package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalCoord/internal/domain/models"
	domsvc "SignalCoord/internal/domain/service"
)

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		action models.SignalType
		conf   float64
		reason string
	}{
		{
			name:   "bare decision object",
			body:   `{"action":"sell","confidence":0.8,"reasoning":"momentum fading"}`,
			action: models.SignalSell, conf: 0.8, reason: "momentum fading",
		},
		{
			name:   "chat completion envelope",
			body:   `{"choices":[{"message":{"role":"assistant","content":"{\"action\":\"hold\",\"confidence\":0.55}"}}]}`,
			action: models.SignalHold, conf: 0.55,
		},
		{
			name:   "fenced json in prose",
			body:   `{"choices":[{"message":{"content":"Sure.\n` + "```json" + `\n{\"action\": \"BUY\", \"confidence\": 1.4, \"reasoning\": \"breakout\"}\n` + "```" + `\nDone."}}]}`,
			action: models.SignalBuy, conf: 1, reason: "breakout",
		},
		{
			name:   "plain text body",
			body:   `I pick {"action":"risk_down","confidence":0.3} given volatility`,
			action: models.SignalRiskDown, conf: 0.3,
		},
		{
			name:   "negative confidence clamps",
			body:   `{"action":"hold","confidence":-2}`,
			action: models.SignalHold, conf: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ParseVerdict([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.action, v.Action)
			assert.InDelta(t, tc.conf, v.Confidence, 1e-12)
			assert.Equal(t, tc.reason, v.Reasoning)
		})
	}
}

func TestParseVerdict_Malformed(t *testing.T) {
	bodies := map[string]string{
		"no json":          `I cannot decide`,
		"unknown action":   `{"action":"short","confidence":0.9}`,
		"action not string": `{"action":1,"confidence":0.9}`,
		"missing conf":     `{"action":"buy"}`,
		"conf as string":   `{"action":"buy","confidence":"high"}`,
		"empty envelope":   `{"choices":[]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVerdict([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedVerdict)
		})
	}

	_, err := ParseVerdict([]byte(`{"error":{"message":"rate limited"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExtractObject_NestedAndStrings(t *testing.T) {
	obj, ok := extractObject(`text {"a":{"b":"}"},"c":1} tail {"d":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":"}"},"c":1}`, obj)

	_, ok = extractObject(`{"unterminated":`)
	assert.False(t, ok)
}

func TestHTTPArbiter_PostsChatCompletion(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"buy\",\"confidence\":0.7,\"reasoning\":\"r\"}"}}]}`))
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL, APIKey: "secret", Model: "m1", Temperature: 0.2}, nil)
	require.NoError(t, err)

	v, err := a.Arbitrate(context.Background(), domsvc.ArbitrationRequest{Prompt: "resolve this"})
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, v.Action)
	assert.Equal(t, "m1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "resolve this", got.Messages[1].Content)
}

func TestHTTPArbiter_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL, BreakerFailures: 2, BreakerCooldown: time.Hour}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := a.Arbitrate(context.Background(), domsvc.ArbitrationRequest{Prompt: "p"})
		require.Error(t, err)
	}
	_, err = a.Arbitrate(context.Background(), domsvc.ArbitrationRequest{Prompt: "p"})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, StateOpen, a.Breaker().State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }

	var transitions []string
	b.OnStateChange(func(from, to BreakerState) { transitions = append(transitions, from.String()+">"+to.String()) })

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "only one probe while half-open")

	b.RecordSuccess()
	assert.True(t, b.Allow())
	assert.Equal(t, []string{"closed>open", "open>half_open", "half_open>closed"}, transitions)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
