// Package metrics holds the Prometheus collectors exported by alertview.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qiniu/alertview/internal/alertlist"
)

const namespace = "alertview"

// Load results.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultCacheHit = "cache"
)

// Metrics owns the alertview prometheus collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	rules        *prometheus.GaugeVec
	commands     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Alert rule loads by result.",
			},
			[]string{"result"},
		),
		loadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Time spent fetching alert rules from Grafana.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		rules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "alert_rules",
				Help:      "Alert rules in the current snapshot by state class.",
			},
			[]string{"state_class"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands applied to the alert rule list.",
			},
			[]string{"command"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	reg.MustRegister(m.loads, m.loadDuration, m.rules, m.commands, m.httpRequests, m.httpDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveLoad records one load attempt. Duration is ignored for cache hits.
func (m *Metrics) ObserveLoad(result string, d time.Duration) {
	m.loads.WithLabelValues(result).Inc()
	if result != ResultCacheHit {
		m.loadDuration.Observe(d.Seconds())
	}
}

// Observer counts commands and tracks rule counts per state class.
// It is passed to alertlist.NewStore.
func (m *Metrics) Observer() alertlist.Observer {
	return func(cmd alertlist.Command, next alertlist.RulesState) {
		m.commands.WithLabelValues(cmd.CommandName()).Inc()
		if _, ok := cmd.(alertlist.RulesLoaded); !ok {
			return
		}
		counts := make(map[string]int)
		for _, it := range next.Items {
			counts[it.StateClass]++
		}
		m.rules.Reset()
		for class, n := range counts {
			m.rules.WithLabelValues(class).Set(float64(n))
		}
	}
}

// GinMiddleware records request count and latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()

		c.Next()

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(method, route, status).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
