package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes counts and latencies only. Nothing here is labelled with
// prices, amounts or owners.
type Metrics struct {
	registry *prometheus.Registry

	OrdersSubmitted *prometheus.CounterVec // symbol, result
	MatchesTotal    *prometheus.CounterVec // symbol
	BatchesTotal    *prometheus.CounterVec // symbol, result
	DroppedResidual *prometheus.CounterVec // symbol
	BookDepth       *prometheus.GaugeVec   // symbol, side
	MatchLatency    prometheus.Histogram
	MempoolSize     prometheus.Gauge
	PeerBatches     *prometheus.CounterVec // result
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Sealed orders submitted, by outcome",
		}, []string{"symbol", "result"}),
		MatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Fills produced by matching passes",
		}, []string{"symbol"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Matching passes, by outcome",
		}, []string{"symbol", "result"}),
		DroppedResidual: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_residuals_total",
			Help:      "Residual orders that could not be re-inserted",
		}, []string{"symbol"}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_depth",
			Help:      "Resting orders per side",
		}, []string{"symbol", "side"}),
		MatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_pass_seconds",
			Help:      "Wall time of one matching pass including commit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Queued transactions",
		}),
		PeerBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_batches_total",
			Help:      "Batch announcements received from peers, by outcome",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.OrdersSubmitted,
		m.MatchesTotal,
		m.BatchesTotal,
		m.DroppedResidual,
		m.BookDepth,
		m.MatchLatency,
		m.MempoolSize,
		m.PeerBatches,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSince records a pass latency started at t0.
func (m *Metrics) ObserveSince(t0 time.Time) {
	m.MatchLatency.Observe(time.Since(t0).Seconds())
}
