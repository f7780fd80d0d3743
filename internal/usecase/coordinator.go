package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	domsvc "SignalCoord/internal/domain/service"
	applogger "SignalCoord/pkg/logger"
)

// FinalDecisionTopic is the bus topic decisions are published on.
const FinalDecisionTopic = "final_decision"

const (
	DefaultConsensusThreshold = 0.65
	DefaultMinAgents          = 3
	DefaultConfidenceFloor    = 0.7
	DefaultPublishTimeout     = 2 * time.Second
)

// State is the coordinator's position in the per-cycle state machine.
type State int32

const (
	StateIdle State = iota
	StateAggregating
	StateConsensusReached
	StateEscalated
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAggregating:
		return "aggregating"
	case StateConsensusReached:
		return "consensus_reached"
	case StateEscalated:
		return "escalated"
	case StatePublished:
		return "published"
	default:
		return "unknown"
	}
}

// CoordinatorConfig holds the decision policy.
type CoordinatorConfig struct {
	ConsensusThreshold float64
	MinAgents          int
	ScoreDecay         float64
	ReturnsWindow      int
	ConflictTimeout    time.Duration
	// ConfidenceFloor is advisory: decisions below it are logged, not gated.
	ConfidenceFloor float64
	BufferCapacity  int
	DecisionWindow  int
	PublishTimeout  time.Duration
	Topic           string
}

// DefaultCoordinatorConfig returns the stock policy.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ConsensusThreshold: DefaultConsensusThreshold,
		MinAgents:          DefaultMinAgents,
		ScoreDecay:         DefaultScoreDecay,
		ReturnsWindow:      DefaultReturnsWindow,
		ConflictTimeout:    DefaultConflictTimeout,
		ConfidenceFloor:    DefaultConfidenceFloor,
		BufferCapacity:     DefaultBufferCapacity,
		DecisionWindow:     DefaultDecisionWindow,
		PublishTimeout:     DefaultPublishTimeout,
		Topic:              FinalDecisionTopic,
	}
}

// Coordinator runs decision cycles: weigh signals, escalate conflicts,
// publish the result.
type Coordinator struct {
	cfg       CoordinatorConfig
	buffer    *SignalBuffer
	tracker   *ReliabilityTracker
	consensus *ConsensusCalculator
	resolver  *ConflictResolver
	stats     *MetricsAggregator
	recent    *DecisionLog
	bus       domrepo.DecisionBus
	metrics   domrepo.Metrics
	logger    *applogger.Logger

	cycleMu sync.Mutex
	state   atomic.Int32
	now     func() time.Time
}

// CoordinatorDeps groups the collaborators. Bus, Arbiter, Store and Metrics
// may be nil.
type CoordinatorDeps struct {
	Bus     domrepo.DecisionBus
	Arbiter domsvc.Arbiter
	Store   domrepo.ReliabilityStore
	Metrics domrepo.Metrics
	Logger  *applogger.Logger
}

// NewCoordinator wires the core components according to cfg.
func NewCoordinator(cfg CoordinatorConfig, deps CoordinatorDeps) *Coordinator {
	def := DefaultCoordinatorConfig()
	if cfg.ConsensusThreshold <= 0 || cfg.ConsensusThreshold > 1 {
		cfg.ConsensusThreshold = def.ConsensusThreshold
	}
	if cfg.MinAgents <= 0 {
		cfg.MinAgents = def.MinAgents
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}

	trackerOpts := []TrackerOption{WithTrackerLogger(deps.Logger), WithReturnsWindow(cfg.ReturnsWindow)}
	if deps.Store != nil {
		trackerOpts = append(trackerOpts, WithReliabilityStore(deps.Store))
	}
	if deps.Metrics != nil {
		trackerOpts = append(trackerOpts, WithTrackerMetrics(deps.Metrics))
	}
	tracker := NewReliabilityTracker(cfg.ScoreDecay, trackerOpts...)

	c := &Coordinator{
		cfg:       cfg,
		buffer:    NewSignalBuffer(cfg.BufferCapacity, deps.Metrics),
		tracker:   tracker,
		consensus: NewConsensusCalculator(tracker),
		resolver:  NewConflictResolver(deps.Arbiter, tracker.Snapshot, cfg.ConflictTimeout, deps.Metrics, deps.Logger),
		stats:     NewMetricsAggregator(deps.Metrics),
		recent:    NewDecisionLog(cfg.DecisionWindow),
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
	return c
}

// Config returns the effective policy.
func (c *Coordinator) Config() CoordinatorConfig { return c.cfg }

// State returns the current cycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Tracker exposes the reliability tracker for outcome updates and inspection.
func (c *Coordinator) Tracker() *ReliabilityTracker { return c.tracker }

// Buffer exposes the pending signal buffer.
func (c *Coordinator) Buffer() *SignalBuffer { return c.buffer }

// AddSignal queues a signal for the next cycle.
func (c *Coordinator) AddSignal(s models.AgentSignal) {
	c.buffer.Add(s)
}

// ProcessPending drains the buffer and runs one cycle over its contents.
func (c *Coordinator) ProcessPending(ctx context.Context) models.Decision {
	return c.ProcessSignals(ctx, c.buffer.Drain())
}

// ProcessSignals runs one complete, independent decision cycle. It always
// returns a valid decision.
func (c *Coordinator) ProcessSignals(ctx context.Context, signals []models.AgentSignal) models.Decision {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	defer c.setState(StateIdle)

	start := time.Now()
	c.setState(StateAggregating)

	var (
		dec  models.Decision
		path models.DecisionPath
	)
	agents := distinctAgents(signals)
	switch {
	case len(signals) == 0:
		dec = models.HoldDecision("No signals provided", nil)
		path = models.PathEmpty
	default:
		res := c.consensus.Calculate(signals)
		if res.Ratio >= c.cfg.ConsensusThreshold && len(agents) >= c.cfg.MinAgents {
			c.setState(StateConsensusReached)
			dec = models.Decision{
				Action:     res.SignalType,
				Confidence: res.Ratio,
				Reasoning:  "Consensus reached",
				Size:       models.DefaultDecisionSize,
				Agents:     res.Contributors,
				Dissenters: dissenters(agents, res.Contributors),
			}
			path = models.PathConsensus
		} else {
			c.setState(StateEscalated)
			if c.logger != nil {
				c.logger.Debug("consensus insufficient, escalating",
					applogger.Any("ratio", res.Ratio),
					applogger.Int("agents", len(agents)),
				)
			}
			dec = c.resolver.Resolve(ctx, signals)
			path = models.PathConflict
		}
	}
	dec.Path = path
	dec.DecidedAt = c.now()

	c.stats.Record(path, time.Since(start))
	if dec.Confidence < c.cfg.ConfidenceFloor && path != models.PathEmpty && c.logger != nil {
		c.logger.Debug("decision below confidence floor",
			applogger.String("action", string(dec.Action)),
			applogger.Any("confidence", dec.Confidence),
			applogger.Any("floor", c.cfg.ConfidenceFloor),
		)
	}

	c.publish(ctx, dec)
	c.setState(StatePublished)
	c.recent.Append(dec)
	return dec
}

// RecordOutcome feeds a settled outcome into the reliability tracker.
func (c *Coordinator) RecordOutcome(ctx context.Context, o models.Outcome) float64 {
	return c.tracker.UpdateWithReturn(ctx, o.AgentID, o.Predicted, o.Realized, o.Return)
}

// Metrics returns a snapshot of the coordinator statistics.
func (c *Coordinator) Metrics() models.CoordinatorMetrics {
	return c.stats.Snapshot(c.tracker.Snapshot())
}

// RecentDecisions returns up to n decisions, newest first.
func (c *Coordinator) RecentDecisions(n int) []models.Decision {
	return c.recent.Recent(n)
}

// publish is best effort: failures are logged and counted, never returned.
func (c *Coordinator) publish(ctx context.Context, dec models.Decision) {
	if c.bus == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	if err := c.bus.Publish(pctx, c.cfg.Topic, dec.Payload()); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("decision_publish")
		}
		if c.logger != nil {
			c.logger.Error("decision publish failed",
				applogger.String("topic", c.cfg.Topic),
				applogger.String("action", string(dec.Action)),
				applogger.Error(err),
			)
		}
	}
}

func (c *Coordinator) setState(s State) { c.state.Store(int32(s)) }

// dissenters returns the agents not in winners, keeping the order of all.
func dissenters(all, winners []string) []string {
	win := make(map[string]struct{}, len(winners))
	for _, id := range winners {
		win[id] = struct{}{}
	}
	out := make([]string, 0, len(all))
	for _, id := range all {
		if _, ok := win[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
