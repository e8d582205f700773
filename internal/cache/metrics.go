package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains decision cache metrics.
type Metrics struct {
	hitsTotal          *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	entries            *prometheus.GaugeVec
}

// NewMetrics creates cache metrics on the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates cache metrics registered with registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "catalog"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		hitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision_cache",
			Name:      "hits_total",
			Help:      "Total number of decision cache hits",
		}, []string{"backend"}),
		missesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision_cache",
			Name:      "misses_total",
			Help:      "Total number of decision cache misses",
		}, []string{"backend"}),
		evictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision_cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted for capacity or expiry",
		}, []string{"backend"}),
		invalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision_cache",
			Name:      "invalidations_total",
			Help:      "Total number of explicit invalidations",
		}, []string{"backend", "scope"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision_cache",
			Name:      "errors_total",
			Help:      "Total number of backend errors",
		}, []string{"backend", "operation"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decision_cache",
			Name:      "entries",
			Help:      "Current number of cached decisions",
		}, []string{"backend"}),
	}

	for _, c := range []prometheus.Collector{
		m.hitsTotal,
		m.missesTotal,
		m.evictionsTotal,
		m.invalidationsTotal,
		m.errorsTotal,
		m.entries,
	} {
		_ = registerer.Register(c)
	}

	return m
}

func (m *Metrics) recordHit(backend string) {
	if m == nil {
		return
	}
	m.hitsTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) recordMiss(backend string) {
	if m == nil {
		return
	}
	m.missesTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) recordEvictions(backend string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictionsTotal.WithLabelValues(backend).Add(float64(n))
}

func (m *Metrics) recordInvalidation(backend, scope string) {
	if m == nil {
		return
	}
	m.invalidationsTotal.WithLabelValues(backend, scope).Inc()
}

func (m *Metrics) recordError(backend, operation string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(backend, operation).Inc()
}

func (m *Metrics) setEntries(backend string, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(backend).Set(float64(n))
}
