// Package monitoring exposes Prometheus metrics for the backtest service
package monitoring

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sp500-backtest/services/engine"
	"sp500-backtest/services/marketdata"
)

const namespace = "backtest"

// Metrics holds the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	TradesTotal    *prometheus.CounterVec
	JournalNotices *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Backtest runs by asset, decision rule and outcome",
		}, []string{"asset", "rule", "status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent loading and simulating one run",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Simulated trades by asset and direction",
		}, []string{"asset", "direction"}),
		JournalNotices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_failures_total",
			Help:      "Journal exports that failed, by sink",
		}, []string{"sink"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RunsTotal,
		m.RunDuration,
		m.TradesTotal,
		m.JournalNotices,
	)
	return m
}

// Registry is exposed for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// OtherAsset labels runs for names outside marketdata.Assets
const OtherAsset = "other"

func assetLabel(asset string) string {
	if slices.Contains(marketdata.Assets, asset) {
		return asset
	}
	return OtherAsset
}

// ObserveRun records a finished run. res is nil when the run failed.
func (m *Metrics) ObserveRun(asset string, res *engine.Result, elapsed time.Duration) {
	asset = assetLabel(asset)
	m.RunDuration.Observe(elapsed.Seconds())
	if res == nil {
		m.RunsTotal.WithLabelValues(asset, "", "error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues(asset, res.Rule.String(), "ok").Inc()
	for _, t := range res.Trades {
		m.TradesTotal.WithLabelValues(asset, t.Direction.String()).Inc()
	}
}

// ObserveJournalFailure counts one failed sink
func (m *Metrics) ObserveJournalFailure(sink string) {
	m.JournalNotices.WithLabelValues(sink).Inc()
}
