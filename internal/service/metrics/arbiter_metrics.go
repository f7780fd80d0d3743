package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ArbiterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalcoord",
			Subsystem: "arbiter",
			Name:      "latency_seconds",
			Help:      "Latency of arbitration oracle calls",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	ArbiterBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signalcoord",
			Subsystem: "arbiter",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	ArbiterRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signalcoord",
			Subsystem: "arbiter",
			Name:      "rejected_total",
			Help:      "Calls short-circuited by the open breaker",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ArbiterLatency, ArbiterBreakerState, ArbiterRejected)
	})
}
