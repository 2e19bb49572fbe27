// Package metrics provides Prometheus instrumentation for the trading engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchesTotal counts batch executions, partitioned by side.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensei_batches_total",
		Help: "Total number of batch trade executions",
	}, []string{"side"})

	// WalletFillsTotal counts per-wallet outcomes within batches.
	WalletFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensei_wallet_fills_total",
		Help: "Per-wallet batch outcomes",
	}, []string{"side", "result"})

	// FillFailures counts per-wallet failures by reason code.
	FillFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensei_fill_failures_total",
		Help: "Per-wallet batch failures by reason",
	}, []string{"reason"})

	// LedgerWriteFailures counts gateway-confirmed fills that could not
	// be recorded locally. Anything above zero needs reconciliation.
	LedgerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensei_ledger_write_failures_total",
		Help: "Confirmed swaps with no local ledger record",
	})

	// SwapLatency tracks swap gateway call latency.
	SwapLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sensei_swap_latency_seconds",
		Help:    "Swap gateway call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// RealizedGains tracks positive realized PnL flowing into rewards.
	RealizedGains = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensei_realized_gains_usd_total",
		Help: "Cumulative positive realized PnL in USD",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sensei_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensei_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sensei_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0, 30.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small
		// enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
