package filestate

import "github.com/prometheus/client_golang/prometheus"

// Label constants for filestate metrics.
const (
	LabelResult = "result"
)

// Metrics collects prometheus counters/gauges for the state cache
// facade, the remote task set, and the oplock break coordinator. A
// fresh, unregistered instance is created by NewMetrics; Register
// attaches it to a registry.
type Metrics struct {
	grantsTotal     *prometheus.CounterVec
	breaksTotal     *prometheus.CounterVec
	deferredDepth   prometheus.Gauge
	deferFailsTotal prometheus.Counter

	registered bool
}

// NewMetrics builds an unregistered Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		grantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nbcluster",
				Subsystem: "filestate",
				Name:      "grants_total",
				Help:      "Total number of GrantFileAccess outcomes by result",
			},
			[]string{LabelResult},
		),
		breaksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nbcluster",
				Subsystem: "filestate",
				Name:      "oplock_breaks_total",
				Help:      "Total number of oplock breaks by outcome",
			},
			[]string{LabelResult},
		),
		deferredDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nbcluster",
				Subsystem: "filestate",
				Name:      "deferred_requests",
				Help:      "Current number of requests deferred across all in-flight oplock breaks on this node",
			},
		),
		deferFailsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nbcluster",
				Subsystem: "filestate",
				Name:      "defer_rejections_total",
				Help:      "Total number of requests rejected with DeferFailed because the deferred queue was full",
			},
		),
	}
}

// Register attaches m's collectors to reg. A nil registry or nil m is a
// no-op, useful for tests and for callers that don't want metrics.
func (m *Metrics) Register(reg prometheus.Registerer) {
	if m == nil || reg == nil || m.registered {
		return
	}
	reg.MustRegister(m.grantsTotal, m.breaksTotal, m.deferredDepth, m.deferFailsTotal)
	m.registered = true
}

func (m *Metrics) observeGrant(result string) {
	if m == nil {
		return
	}
	m.grantsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeBreak(result string) {
	if m == nil {
		return
	}
	m.breaksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) setDeferredDepth(n int) {
	if m == nil {
		return
	}
	m.deferredDepth.Set(float64(n))
}

func (m *Metrics) observeDeferFailed() {
	if m == nil {
		return
	}
	m.deferFailsTotal.Inc()
}
