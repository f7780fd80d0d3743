package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	decisions        *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	reliability      *prometheus.GaugeVec
	arbiterFailures  *prometheus.CounterVec
	evictions        prometheus.Counter
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New registers the coordinator metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalcoord_decisions_total",
				Help: "Decisions emitted, by path (consensus, conflict, empty)",
			},
			[]string{"path"},
		),
		decisionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalcoord_decision_duration_seconds",
				Help:    "Wall time of one decision cycle",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		reliability: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalcoord_agent_reliability",
				Help: "Current reliability score per agent",
			},
			[]string{"agent"},
		),
		arbiterFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalcoord_arbiter_failures_total",
				Help: "Conflict resolutions that fell back to hold, by reason",
			},
			[]string{"reason"},
		),
		evictions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "signalcoord_buffer_evictions_total",
				Help: "Signals dropped because the buffer was full",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalcoord_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalcoord_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordDecision(path string, seconds float64) {
	r.decisions.WithLabelValues(path).Inc()
	r.decisionDuration.Observe(seconds)
}

func (r *Recorder) RecordAgentReliability(agentID string, score float64) {
	r.reliability.WithLabelValues(agentID).Set(score)
}

func (r *Recorder) RecordBufferEviction() { r.evictions.Inc() }

func (r *Recorder) RecordArbiterFailure(reason string) {
	r.arbiterFailures.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
