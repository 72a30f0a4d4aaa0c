package node

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *routerMetrics
)

type routerMetrics struct {
	payments  *prometheus.CounterVec
	hashlocks prometheus.Gauge
	peers     prometheus.Gauge
}

func newRouterMetrics() *routerMetrics {
	metricsInitOnce.Do(func() {
		m := &routerMetrics{
			payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xln_router_payments_total",
				Help: "Payment events handled by the router, by role and outcome.",
			}, []string{"role", "outcome"}),
			hashlocks: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "xln_router_hashlocks",
				Help: "Payments in flight through this node.",
			}),
			peers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "xln_node_connected_peers",
				Help: "Peers with an open transport.",
			}),
		}
		prometheus.MustRegister(m.payments, m.hashlocks, m.peers)
		sharedMetrics = m
	})
	return sharedMetrics
}

func (m *routerMetrics) recordPayment(role, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(role, outcome).Inc()
}

func (m *routerMetrics) setHashlocks(n int) {
	if m == nil {
		return
	}
	m.hashlocks.Set(float64(n))
}

func (m *routerMetrics) setPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}
