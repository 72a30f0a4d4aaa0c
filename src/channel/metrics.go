package channel

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *channelMetrics
)

type channelMetrics struct {
	blocks      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	flushes     *prometheus.CounterVec
	halts       prometheus.Counter
	blockID     *prometheus.GaugeVec
	mempool     *prometheus.GaugeVec
}

func newChannelMetrics() *channelMetrics {
	metricsInitOnce.Do(func() {
		m := &channelMetrics{
			blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xln_channel_blocks_committed_total",
				Help: "Committed blocks by author.",
			}, []string{"author"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xln_channel_transitions_applied_total",
				Help: "Committed transitions by type.",
			}, []string{"type"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xln_channel_messages_rejected_total",
				Help: "Rejected flush messages and transitions by reason.",
			}, []string{"reason"}),
			flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xln_channel_flushes_total",
				Help: "Flush messages by direction and kind.",
			}, []string{"direction", "kind"}),
			halts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "xln_channel_halts_total",
				Help: "Channels halted on invariant violations.",
			}),
			blockID: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "xln_channel_block_id",
				Help: "Committed block id per peer.",
			}, []string{"peer"}),
			mempool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "xln_channel_mempool_size",
				Help: "Transitions waiting to be proposed per peer.",
			}, []string{"peer"}),
		}
		prometheus.MustRegister(m.blocks, m.transitions, m.rejected, m.flushes, m.halts, m.blockID, m.mempool)
		sharedMetrics = m
	})
	return sharedMetrics
}

func (m *channelMetrics) recordCommit(peer string, author string, blockID uint64, types []string) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(author).Inc()
	for _, t := range types {
		m.transitions.WithLabelValues(t).Inc()
	}
	m.blockID.WithLabelValues(peer).Set(float64(blockID))
}

func (m *channelMetrics) recordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *channelMetrics) recordFlush(direction string, withBlock bool) {
	if m == nil {
		return
	}
	kind := "ack"
	if withBlock {
		kind = "block"
	}
	m.flushes.WithLabelValues(direction, kind).Inc()
}

func (m *channelMetrics) recordMempool(peer string, size int) {
	if m == nil {
		return
	}
	m.mempool.WithLabelValues(peer).Set(float64(size))
}

func (m *channelMetrics) recordHalt() {
	if m == nil {
		return
	}
	m.halts.Inc()
}
