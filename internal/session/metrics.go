package session

import "github.com/prometheus/client_golang/prometheus"

// Reasons a session stops existing.
const (
	ReasonRemoved  = "removed"
	ReasonExpired  = "expired"
	ReasonReplaced = "replaced"
)

// Metrics is nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// CreatedTotal counts sessions issued by Put.
	CreatedTotal prometheus.Counter

	// DestroyedTotal counts sessions that ended, labeled by reason:
	// "removed", "expired" or "replaced".
	DestroyedTotal *prometheus.CounterVec

	// Active is the number of sessions held in memory.
	Active prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lumauth",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		}),
		DestroyedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumauth",
			Subsystem: "sessions",
			Name:      "destroyed_total",
			Help:      "Total number of sessions destroyed",
		}, []string{"reason"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lumauth",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of sessions",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.CreatedTotal, m.DestroyedTotal, m.Active} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}
	return m
}

func (m *Metrics) recordCreated() {
	if m == nil {
		return
	}
	m.CreatedTotal.Inc()
}

func (m *Metrics) recordDestroyed(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DestroyedTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.Active.Set(float64(n))
}
