package authclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// Attempts counts authentication attempts by outcome.
	Attempts *prometheus.CounterVec

	// WorkerDuration observes round trips to the worker that produced an
	// answer.
	WorkerDuration prometheus.Histogram
}

// NewMetrics creates the client metrics and registers them with reg when reg
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumauth",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by outcome",
		}, []string{"outcome"}),
		WorkerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lumauth",
			Subsystem: "auth",
			Name:      "worker_duration_seconds",
			Help:      "Time the privileged worker took to answer",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Attempts, m.WorkerDuration} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}
	return m
}

func (m *Metrics) recordAttempt(o Outcome) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) recordWorker(d time.Duration) {
	if m == nil {
		return
	}
	m.WorkerDuration.Observe(d.Seconds())
}
