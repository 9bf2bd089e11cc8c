package node

import "github.com/prometheus/client_golang/prometheus"

// Label constants for NetBIOS request metrics.
const (
	LabelKind   = "kind"
	LabelStatus = "status"
)

// Metrics collects prometheus counters for the name service node. A
// fresh, unregistered instance is created by NewMetrics; Register
// attaches it to a registry (typically done once at process start).
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	malformedTotal prometheus.Counter

	registered bool
}

// NewMetrics builds an unregistered Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nbcluster",
				Subsystem: "netbios",
				Name:      "requests_total",
				Help:      "Total number of outgoing name service requests by kind and terminal status",
			},
			[]string{LabelKind, LabelStatus},
		),
		malformedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nbcluster",
				Subsystem: "netbios",
				Name:      "malformed_packets_total",
				Help:      "Total number of datagrams dropped as malformed",
			},
		),
	}
}

// Register attaches m's collectors to reg. Safe to call once per
// process; a nil registry is a no-op, useful for tests.
func (m *Metrics) Register(reg prometheus.Registerer) {
	if reg == nil || m.registered {
		return
	}
	reg.MustRegister(m.requestsTotal, m.malformedTotal)
	m.registered = true
}
