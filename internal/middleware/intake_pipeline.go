package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	"SignalCoord/internal/service/ratelimit"
)

// ErrThrottled is returned when an agent exceeds its signal rate.
var ErrThrottled = errors.New("intake: agent throttled")

// Buffer is the minimal downstream the pipeline needs.
type Buffer interface {
	AddSignal(s models.AgentSignal)
}

// IntakePipeline sits between transports (HTTP, Kafka) and the signal buffer.
// It validates, normalizes and throttles signals per agent.
type IntakePipeline struct {
	next    Buffer
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	burst   float64
	rate    float64 // signals per second per agent
	// optional format transform hook
	transform func(models.AgentSignal) models.AgentSignal
	now       func() time.Time
	submitted atomic.Uint64
}

// pruneEvery controls how often idle limiter buckets are swept.
const pruneEvery = 1024

type PipelineOption func(*IntakePipeline)

// WithAgentRate sets the per-agent token bucket; rate <= 0 disables throttling.
func WithAgentRate(rate float64, burst int) PipelineOption {
	return func(p *IntakePipeline) {
		p.rate = rate
		if burst > 0 {
			p.burst = float64(burst)
		}
	}
}

// WithTransform sets a transformation hook applied before validation.
func WithTransform(fn func(models.AgentSignal) models.AgentSignal) PipelineOption {
	return func(p *IntakePipeline) { p.transform = fn }
}

// NewIntakePipeline creates a new pipeline in front of next.
func NewIntakePipeline(next Buffer, metrics domrepo.Metrics, opts ...PipelineOption) *IntakePipeline {
	p := &IntakePipeline{
		next:    next,
		metrics: metrics,
		limiter: ratelimit.New(),
		burst:   20,
		rate:    10,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates and forwards s. Throttled signals return ErrThrottled and
// are not buffered.
func (p *IntakePipeline) Submit(ctx context.Context, s models.AgentSignal) error {
	start := p.now()
	if p.transform != nil {
		s = p.transform(s)
	}
	if err := ValidateSignal(s); err != nil {
		p.recordError("intake_validate")
		return err
	}
	if p.submitted.Add(1)%pruneEvery == 0 {
		p.limiter.Prune()
	}
	if p.rate > 0 && !p.limiter.Allow(s.AgentID, p.burst, p.rate) {
		p.recordError("intake_throttle")
		return fmt.Errorf("%w: %s", ErrThrottled, s.AgentID)
	}
	p.next.AddSignal(s)
	if p.metrics != nil {
		p.metrics.RecordLatency("intake_submit", time.Since(start).Seconds())
	}
	return nil
}

// ValidateSignal checks the fields the coordinator relies on. Confidence is
// not range-checked here; the core clamps it.
func ValidateSignal(s models.AgentSignal) error {
	if s.AgentID == "" {
		return fmt.Errorf("agent_id empty")
	}
	if !s.SignalType.Valid() {
		return fmt.Errorf("signal_type %q unknown", s.SignalType)
	}
	if math.IsNaN(s.Confidence) || math.IsInf(s.Confidence, 0) {
		return fmt.Errorf("confidence not finite")
	}
	return nil
}

func (p *IntakePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

var _ domrepo.SignalSink = (*IntakePipeline)(nil)
