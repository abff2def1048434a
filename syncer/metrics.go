package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes sync outcomes. A nil *Metrics records nothing.
type Metrics struct {
	remoteCalls *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	online      prometheus.Gauge
}

// NewMetrics registers the sync collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "remote_calls_total",
			Help:      "Remote task store calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "local_fallbacks_total",
			Help:      "Operations served from the local cache after a remote failure.",
		}, []string{"op"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksync",
			Name:      "online",
			Help:      "1 when the last remote call succeeded.",
		}),
	}
	reg.MustRegister(m.remoteCalls, m.fallbacks, m.online)
	m.online.Set(1)
	return m
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) fallback(op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) setOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
