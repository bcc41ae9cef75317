package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EscrowMetrics struct {
	transactions *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	applyLatency *prometheus.HistogramVec
	custody      prometheus.Gauge
	sequence     prometheus.Gauge
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_transactions_total",
				Help: "Count of submitted transactions by type and outcome.",
			}, []string{"type", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_rejections_total",
				Help: "Count of rejected transactions by type and error class.",
			}, []string{"type", "reason"}),
			applyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "escrow_apply_duration_seconds",
				Help:    "Time spent applying and committing a transaction.",
				Buckets: prometheus.DefBuckets,
			}, []string{"type"}),
			custody: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_custody_balance",
				Help: "Native balance currently held by the escrow account, in base units.",
			}),
			sequence: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_sequence",
				Help: "Sequence number of the last committed transaction.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.transactions,
			escrowRegistry.rejections,
			escrowRegistry.applyLatency,
			escrowRegistry.custody,
			escrowRegistry.sequence,
		)
	})
	return escrowRegistry
}

// ObserveTransaction records one submission. An empty reason marks success.
func (m *EscrowMetrics) ObserveTransaction(txType, reason string, d time.Duration) {
	if m == nil {
		return
	}
	if txType == "" {
		txType = "unknown"
	}
	outcome := "committed"
	if reason != "" {
		outcome = "rejected"
		m.rejections.WithLabelValues(txType, reason).Inc()
	}
	m.transactions.WithLabelValues(txType, outcome).Inc()
	m.applyLatency.WithLabelValues(txType).Observe(d.Seconds())
}

func (m *EscrowMetrics) SetCustodyBalance(v *big.Int) {
	if m == nil || v == nil {
		return
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	m.custody.Set(f)
}

func (m *EscrowMetrics) SetSequence(seq uint64) {
	if m == nil {
		return
	}
	m.sequence.Set(float64(seq))
}
