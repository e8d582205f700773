package pdp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains decision client metrics.
type Metrics struct {
	decisionsTotal     *prometheus.CounterVec
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	policyLookupsTotal *prometheus.CounterVec
}

// NewMetrics creates decision client metrics on the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates decision client metrics registered
// with registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "catalog"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "decisions_total",
			Help:      "Total number of decisions by verdict and source",
		}, []string{"verdict", "source"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "backend_requests_total",
			Help:      "Total number of decision service attempts by result",
		}, []string{"backend", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "backend_request_duration_seconds",
			Help:      "Decision service attempt duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"backend"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "retries_total",
			Help:      "Total number of decision service retries",
		}, []string{"backend"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		}, []string{"name", "from", "to"}),
		policyLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdp",
			Name:      "policy_lookups_total",
			Help:      "Total number of policy lookups by result",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.decisionsTotal,
		m.requestsTotal,
		m.requestDuration,
		m.retriesTotal,
		m.breakerState,
		m.breakerTransitions,
		m.policyLookupsTotal,
	} {
		_ = registerer.Register(c)
	}

	return m
}

func (m *Metrics) recordDecision(verdict Verdict, cached bool) {
	if m == nil {
		return
	}
	source := "backend"
	if cached {
		source = "cache"
	}
	m.decisionsTotal.WithLabelValues(verdict.String(), source).Inc()
}

func (m *Metrics) recordAttempt(backend, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(backend, result).Inc()
	m.requestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func (m *Metrics) recordRetry(backend string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) setBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) recordBreakerTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

func (m *Metrics) recordPolicyLookup(result string) {
	if m == nil {
		return
	}
	m.policyLookupsTotal.WithLabelValues(result).Inc()
}
