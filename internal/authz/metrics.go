package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains gate metrics.
type Metrics struct {
	outcomesTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics creates gate metrics on the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates gate metrics registered with registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "catalog"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "gate_outcomes_total",
			Help:      "Total number of gate outcomes by terminal state and denial cause",
		}, []string{"state", "cause"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "gate_duration_seconds",
			Help:      "Time spent in the authorization gate in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"state"}),
	}

	_ = registerer.Register(m.outcomesTotal)
	_ = registerer.Register(m.duration)

	return m
}

func (m *Metrics) recordOutcome(state State, cause string, duration time.Duration) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(state.String(), cause).Inc()
	m.duration.WithLabelValues(state.String()).Observe(duration.Seconds())
}
