package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, "snappy")

	err := p.Publish(context.Background(), "final_decision", []byte("buy"), map[string]any{"action": "buy"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "final_decision", w.msgs[0].Topic)
	assert.Equal(t, []byte("buy"), w.msgs[0].Key)
	assert.JSONEq(t, `{"action":"buy"}`, string(w.msgs[0].Value))
}

func TestProducer_PublishBatchHeadersAndRawValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, "none")

	err := p.PublishBatch(context.Background(), "t", []Message{
		{Value: []byte("raw")},
		{Value: "text", Headers: map[string]string{"trace_id": "abc"}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "raw", string(w.msgs[0].Value))
	assert.Equal(t, "abc", ExtractTraceID(w.msgs[1]))
}

func TestProducer_WrapsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducerWithWriter(w, "snappy")
	err := p.PublishMessage(context.Background(), "logs", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestHookChain_ThreadsContextAndRecoversPanic(t *testing.T) {
	type key string
	var afterOrder []string
	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return context.WithValue(ctx, key("k"), "v"), km, append(data, '1'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { afterOrder = append(afterOrder, "first") },
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			assert.Equal(t, "v", ctx.Value(key("k")))
			return ctx, km, append(data, '2'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { afterOrder = append(afterOrder, "second") },
	}
	chain := NewHookChain(first, nil, second)

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x12", string(data))

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"second", "first"}, afterOrder)

	panicky := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("bad hook")
	}}
	_, _, _, err = NewHookChain(panicky).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "t-1", TraceIDFromContext(ctx))
	_, ok := ctx.Value(CtxStartTime).(time.Time)
	assert.True(t, ok)
}

func TestBackoffWithJitter_Bounds(t *testing.T) {
	for attempt := 1; attempt < 8; attempt++ {
		d := backoffWithJitter(50*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
