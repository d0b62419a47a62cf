// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scanner metrics
	ScansTotal       prometheus.Counter
	TokensScanned    prometheus.Counter
	SafeTokens       prometheus.Counter
	PumpDumpSuspects prometheus.Counter
	ScanErrors       prometheus.Counter
	ScanDuration     prometheus.Histogram

	// Feed metrics
	FeedRequests *prometheus.CounterVec
	FeedLatency  *prometheus.HistogramVec

	// Cache metrics
	CacheEntries   prometheus.Gauge
	CacheEvictions prometheus.Counter

	// Trading metrics
	SignalsGenerated *prometheus.CounterVec
	ValidationsTotal *prometheus.CounterVec
	TradesExecuted   *prometheus.CounterVec
	TradeFailures    prometheus.Counter

	// Position metrics
	OpenPositions   prometheus.Gauge
	PositionsClosed *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// WebSocket metrics
	WSClients    prometheus.Gauge
	WSEventsSent prometheus.Counter

	// Health metrics
	LastSuccessfulScan prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokenradar"
	}

	return &Metrics{
		// Scanner metrics
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Total number of scan runs",
		}),
		TokensScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "tokens_scanned_total",
			Help:      "Total number of tokens enriched and committed",
		}),
		SafeTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "safe_tokens_total",
			Help:      "Total number of tokens that cleared the safety threshold",
		}),
		PumpDumpSuspects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "pump_dump_suspects_total",
			Help:      "Total number of tokens flagged as pump-and-dump suspects",
		}),
		ScanErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "errors_total",
			Help:      "Total number of scan errors",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "duration_seconds",
			Help:      "Scan run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		// Feed metrics
		FeedRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feeds",
			Name:      "requests_total",
			Help:      "Total number of upstream feed requests by feed and outcome",
		}, []string{"feed", "outcome"}),
		FeedLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feeds",
			Name:      "request_latency_seconds",
			Help:      "Upstream feed request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),

		// Cache metrics
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of live token cache entries",
		}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of token cache evictions",
		}),

		// Trading metrics
		SignalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "signals_generated_total",
			Help:      "Total number of trading signals generated by action",
		}, []string{"action"}),
		ValidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "validations_total",
			Help:      "Total number of signal validations by status",
		}, []string{"status"}),
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_executed_total",
			Help:      "Total number of executed swaps by chain and side",
		}, []string{"chain", "side"}),
		TradeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trade_failures_total",
			Help:      "Total number of failed swap executions",
		}),

		// Position metrics
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of open positions",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of closed positions by exit reason",
		}, []string{"reason"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// WebSocket metrics
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Current number of connected WebSocket clients",
		}),
		WSEventsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "events_sent_total",
			Help:      "Total number of events broadcast to WebSocket clients",
		}),

		// Health metrics
		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of last completed scan",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordScanCompleted records a finished scan run.
func RecordScanCompleted(tokens int, seconds float64, finishedUnix int64) {
	DefaultMetrics.ScansTotal.Inc()
	DefaultMetrics.TokensScanned.Add(float64(tokens))
	DefaultMetrics.ScanDuration.Observe(seconds)
	DefaultMetrics.LastSuccessfulScan.Set(float64(finishedUnix))
}

// RecordScanError increments the scan error counter.
func RecordScanError() {
	DefaultMetrics.ScanErrors.Inc()
}

// RecordTokenFlags counts the safety classification of a committed record.
func RecordTokenFlags(safe, suspect bool) {
	if safe {
		DefaultMetrics.SafeTokens.Inc()
	}
	if suspect {
		DefaultMetrics.PumpDumpSuspects.Inc()
	}
}

// RecordFeedRequest records one upstream feed call.
func RecordFeedRequest(feed, outcome string, seconds float64) {
	DefaultMetrics.FeedRequests.WithLabelValues(feed, outcome).Inc()
	DefaultMetrics.FeedLatency.WithLabelValues(feed).Observe(seconds)
}

// RecordSignal counts a generated signal by action.
func RecordSignal(action string) {
	DefaultMetrics.SignalsGenerated.WithLabelValues(action).Inc()
}

// RecordValidation counts a validation outcome by status.
func RecordValidation(status string) {
	DefaultMetrics.ValidationsTotal.WithLabelValues(status).Inc()
}

// RecordTrade counts an executed swap.
func RecordTrade(chain, side string) {
	DefaultMetrics.TradesExecuted.WithLabelValues(chain, side).Inc()
}

// RecordTradeFailure increments the failed swap counter.
func RecordTradeFailure() {
	DefaultMetrics.TradeFailures.Inc()
}

// RecordPositionClosed counts a closed position by exit reason.
func RecordPositionClosed(reason string) {
	DefaultMetrics.PositionsClosed.WithLabelValues(reason).Inc()
}

// UpdateOpenPositions updates the open position gauge.
func UpdateOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// UpdateCacheEntries updates the cache entry gauge.
func UpdateCacheEntries(n int) {
	DefaultMetrics.CacheEntries.Set(float64(n))
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(database, operation string, seconds float64) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
}

// RecordDBError records a database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}

// UpdateWSClients updates the connected client gauge.
func UpdateWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordWSEvent increments the broadcast counter.
func RecordWSEvent() {
	DefaultMetrics.WSEventsSent.Inc()
}
