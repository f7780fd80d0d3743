package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	domsvc "SignalCoord/internal/domain/service"
	applogger "SignalCoord/pkg/logger"
)

// DefaultConflictTimeout bounds one oracle call.
const DefaultConflictTimeout = 500 * time.Millisecond

const (
	reasonNoArbiter = "No arbitration oracle configured for conflict resolution"
	reasonFailed    = "Conflict resolution failed: "
)

const conflictPromptTemplate = `Conflicting trading agent signals detected.

Conflicting signals:
%s

Market context:
- Volatility: N/A
- Trend: N/A
- Volume: N/A
- Open positions: N/A

Recent agent reliability:
%s

Choose the best action and justify it.
Respond with JSON only: {"action": "buy|sell|hold|risk_up|risk_down", "confidence": 0.X, "reasoning": "..."}
`

// ErrArbiterTimeout is reported when the oracle does not answer within budget.
var ErrArbiterTimeout = errors.New("arbitration timed out")

// ConflictResolver delegates unresolved cycles to the arbitration oracle and
// falls back to a neutral hold on any failure.
type ConflictResolver struct {
	arbiter     domsvc.Arbiter
	reliability func() map[string]float64
	timeout     time.Duration
	metrics     domrepo.Metrics
	logger      *applogger.Logger
}

// NewConflictResolver creates a resolver. arbiter may be nil.
func NewConflictResolver(arbiter domsvc.Arbiter, reliability func() map[string]float64, timeout time.Duration, metrics domrepo.Metrics, logger *applogger.Logger) *ConflictResolver {
	if timeout <= 0 {
		timeout = DefaultConflictTimeout
	}
	return &ConflictResolver{
		arbiter:     arbiter,
		reliability: reliability,
		timeout:     timeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// Resolve never fails: every error path yields a hold decision with the
// reason in Reasoning. Agents lists every distinct input agent.
func (r *ConflictResolver) Resolve(ctx context.Context, signals []models.AgentSignal) models.Decision {
	agents := distinctAgents(signals)
	if r.arbiter == nil {
		return r.fallback(reasonNoArbiter, agents)
	}

	req, err := r.buildRequest(signals)
	if err != nil {
		return r.failed("build_request", err, agents)
	}

	verdict, err := r.call(ctx, req)
	if err != nil {
		reason := "oracle_error"
		if errors.Is(err, ErrArbiterTimeout) {
			reason = "timeout"
		}
		return r.failed(reason, err, agents)
	}
	if !verdict.Action.Valid() {
		return r.failed("invalid_action", fmt.Errorf("unknown action %q", verdict.Action), agents)
	}

	return models.Decision{
		Action:     verdict.Action,
		Confidence: models.Clamp01(verdict.Confidence),
		Reasoning:  verdict.Reasoning,
		Size:       models.DefaultDecisionSize,
		Agents:     agents,
		Dissenters: []string{},
	}
}

// call runs the oracle in its own goroutine so the timeout holds even when
// the implementation ignores ctx.
func (r *ConflictResolver) call(ctx context.Context, req domsvc.ArbitrationRequest) (domsvc.ArbitrationVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		v   domsvc.ArbitrationVerdict
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("arbiter panic: %v", p)}
			}
		}()
		v, err := r.arbiter.Arbitrate(ctx, req)
		ch <- result{v: v, err: err}
	}()

	select {
	case res := <-ch:
		if r.metrics != nil {
			r.metrics.RecordLatency("arbiter_call", time.Since(start).Seconds())
		}
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return res.v, fmt.Errorf("%w after %s", ErrArbiterTimeout, r.timeout)
		}
		return res.v, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domsvc.ArbitrationVerdict{}, fmt.Errorf("%w after %s", ErrArbiterTimeout, r.timeout)
		}
		return domsvc.ArbitrationVerdict{}, ctx.Err()
	}
}

func (r *ConflictResolver) buildRequest(signals []models.AgentSignal) (domsvc.ArbitrationRequest, error) {
	var rel map[string]float64
	if r.reliability != nil {
		rel = r.reliability()
	}
	if rel == nil {
		rel = map[string]float64{}
	}
	prompt, err := BuildConflictPrompt(signals, rel)
	if err != nil {
		return domsvc.ArbitrationRequest{}, err
	}
	return domsvc.ArbitrationRequest{Prompt: prompt, Signals: signals, Reliability: rel}, nil
}

// BuildConflictPrompt renders the arbitration prompt with the full signal
// records and the reliability snapshot.
func BuildConflictPrompt(signals []models.AgentSignal, reliability map[string]float64) (string, error) {
	sj, err := json.Marshal(signals)
	if err != nil {
		return "", fmt.Errorf("marshal signals: %w", err)
	}
	rj, err := json.Marshal(reliability)
	if err != nil {
		return "", fmt.Errorf("marshal reliability: %w", err)
	}
	return fmt.Sprintf(conflictPromptTemplate, sj, rj), nil
}

func (r *ConflictResolver) failed(reason string, err error, agents []string) models.Decision {
	if r.metrics != nil {
		r.metrics.RecordArbiterFailure(reason)
	}
	if r.logger != nil {
		r.logger.Warn("conflict resolution failed",
			applogger.String("reason", reason),
			applogger.Error(err),
		)
	}
	return r.fallback(reasonFailed+err.Error(), agents)
}

func (r *ConflictResolver) fallback(reasoning string, agents []string) models.Decision {
	return models.HoldDecision(reasoning, agents)
}

// distinctAgents lists agent ids in first-seen order without duplicates.
func distinctAgents(signals []models.AgentSignal) []string {
	out := make([]string, 0, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		if _, ok := seen[s.AgentID]; ok {
			continue
		}
		seen[s.AgentID] = struct{}{}
		out = append(out, s.AgentID)
	}
	return out
}
