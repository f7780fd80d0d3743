package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"SignalCoord/internal/domain/models"
	domsvc "SignalCoord/internal/domain/service"
)

type fakeMetrics struct {
	mu          sync.Mutex
	decisions   map[string]int
	reliability map[string]float64
	evictions   int
	arbiter     map[string]int
	errors      map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		decisions:   map[string]int{},
		reliability: map[string]float64{},
		arbiter:     map[string]int{},
		errors:      map[string]int{},
	}
}

func (m *fakeMetrics) RecordDecision(path string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[path]++
}

func (m *fakeMetrics) RecordAgentReliability(agentID string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reliability[agentID] = score
}

func (m *fakeMetrics) RecordBufferEviction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions++
}

func (m *fakeMetrics) RecordArbiterFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arbiter[reason]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type arbiterFunc func(ctx context.Context, req domsvc.ArbitrationRequest) (domsvc.ArbitrationVerdict, error)

func (f arbiterFunc) Arbitrate(ctx context.Context, req domsvc.ArbitrationRequest) (domsvc.ArbitrationVerdict, error) {
	return f(ctx, req)
}

type mockBus struct{ mock.Mock }

func (m *mockBus) Publish(ctx context.Context, topic string, p models.DecisionPayload) error {
	return m.Called(ctx, topic, p).Error(0)
}

func (m *mockBus) Close() error { return m.Called().Error(0) }

type mockStore struct{ mock.Mock }

func (m *mockStore) Save(ctx context.Context, snap models.ReliabilitySnapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (m *mockStore) Load(ctx context.Context) (models.ReliabilitySnapshot, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.ReliabilitySnapshot), args.Bool(1), args.Error(2)
}

func sig(agent string, st models.SignalType, conf float64) models.AgentSignal {
	return models.AgentSignal{AgentID: agent, SignalType: st, Confidence: conf}
}
