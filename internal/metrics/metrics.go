package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	decisionCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frontrunner",
			Subsystem: "decision",
			Name:      "cycles_total",
			Help:      "Decision cycles by outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	decisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "frontrunner",
			Subsystem: "decision",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of decision cycles that ran.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"strategy"},
	)

	tradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frontrunner",
			Subsystem: "trades",
			Name:      "opened_total",
			Help:      "Trades opened.",
		},
		[]string{"strategy"},
	)

	tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frontrunner",
			Subsystem: "trades",
			Name:      "closed_total",
			Help:      "Trades closed, by reason.",
		},
		[]string{"strategy", "reason"},
	)

	tradeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frontrunner",
			Subsystem: "trades",
			Name:      "failures_total",
			Help:      "Trade execution or persistence failures.",
		},
		[]string{"strategy", "leg"},
	)

	priceFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frontrunner",
			Subsystem: "prices",
			Name:      "fetch_failures_total",
			Help:      "Failed price or oracle fetches.",
		},
		[]string{"source"},
	)

	heartbeat = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "frontrunner",
			Name:      "heartbeat",
			Help:      "Latest heartbeat counter.",
		},
	)

	blockNumber = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "frontrunner",
			Name:      "block_number",
			Help:      "Latest processed block.",
		},
	)

	divergence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "frontrunner",
			Name:      "oracle_to_feed_divergence",
			Help:      "Latest oracle/feed - 1 per pair.",
		},
		[]string{"pair"},
	)
)

func init() {
	Registry.MustRegister(
		decisionCycles,
		decisionDuration,
		tradesOpened,
		tradesClosed,
		tradeFailures,
		priceFetchFailures,
		heartbeat,
		blockNumber,
		divergence,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordDecision records a cycle that ran.
func RecordDecision(strategy string, d time.Duration, err error) {
	outcome := "ran"
	if err != nil {
		outcome = "error"
	}
	decisionCycles.WithLabelValues(strategy, outcome).Inc()
	decisionDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordDecisionSkipped records a cycle rejected by the single-flight guard.
func RecordDecisionSkipped(strategy string) {
	decisionCycles.WithLabelValues(strategy, "skipped").Inc()
}

// RecordTradeOpened counts an opened trade.
func RecordTradeOpened(strategy string) {
	tradesOpened.WithLabelValues(strategy).Inc()
}

// RecordTradeClosed counts a closed trade.
func RecordTradeClosed(strategy, reason string) {
	tradesClosed.WithLabelValues(strategy, reason).Inc()
}

// RecordTradeFailure counts a failed open or close leg.
func RecordTradeFailure(strategy, leg string) {
	tradeFailures.WithLabelValues(strategy, leg).Inc()
}

// RecordFetchFailure counts a failed fetch from a source.
func RecordFetchFailure(source string) {
	priceFetchFailures.WithLabelValues(source).Inc()
}

// SetHeartbeat publishes the latest heartbeat counter.
func SetHeartbeat(n int64) {
	heartbeat.Set(float64(n))
}

// SetBlockNumber publishes the latest processed block.
func SetBlockNumber(n uint64) {
	blockNumber.Set(float64(n))
}

// SetDivergence publishes the latest divergence of a pair.
func SetDivergence(pair string, v float64) {
	divergence.WithLabelValues(pair).Set(v)
}
