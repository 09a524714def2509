// Package proxy implements the HTTP proxy server.
package proxy

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promCollector adapts Handler's atomic counters to prometheus.Collector,
// sampled at scrape time rather than incremented inline -- dispatch and
// dispatchStream stay a handful of atomic adds, not a field of labeled
// prometheus.Counter updates per request.
type promCollector struct {
	h *Handler

	totalRequests    *prometheus.Desc
	successRequests  *prometheus.Desc
	errorRequests    *prometheus.Desc
	streamRequests   *prometheus.Desc
	toolCallRequests *prometheus.Desc
	cascadeExhausted *prometheus.Desc
	avgLatencyMs     *prometheus.Desc
	uptimeSeconds    *prometheus.Desc
	rateLimitAllowed *prometheus.Desc
	rateLimitDenied  *prometheus.Desc
}

func newPromCollector(h *Handler) *promCollector {
	const ns = "clasp_cascade"
	return &promCollector{
		h:                h,
		totalRequests:    prometheus.NewDesc(ns+"_requests_total", "Total requests dispatched.", nil, nil),
		successRequests:  prometheus.NewDesc(ns+"_requests_success_total", "Successful requests.", nil, nil),
		errorRequests:    prometheus.NewDesc(ns+"_requests_error_total", "Failed requests.", nil, nil),
		streamRequests:   prometheus.NewDesc(ns+"_requests_stream_total", "Streaming requests.", nil, nil),
		toolCallRequests: prometheus.NewDesc(ns+"_requests_tool_call_total", "Requests carrying tool definitions.", nil, nil),
		cascadeExhausted: prometheus.NewDesc(ns+"_cascade_exhausted_total", "Requests where every tier in the cascade failed.", nil, nil),
		avgLatencyMs:     prometheus.NewDesc(ns+"_avg_latency_ms", "Average successful-request latency in milliseconds.", nil, nil),
		uptimeSeconds:    prometheus.NewDesc(ns+"_uptime_seconds", "Process uptime in seconds.", nil, nil),
		rateLimitAllowed: prometheus.NewDesc(ns+"_rate_limit_allowed_total", "Requests allowed by the rate limiter.", nil, nil),
		rateLimitDenied:  prometheus.NewDesc(ns+"_rate_limit_denied_total", "Requests denied by the rate limiter.", nil, nil),
	}
}

func (c *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRequests
	ch <- c.successRequests
	ch <- c.errorRequests
	ch <- c.streamRequests
	ch <- c.toolCallRequests
	ch <- c.cascadeExhausted
	ch <- c.avgLatencyMs
	ch <- c.uptimeSeconds
	ch <- c.rateLimitAllowed
	ch <- c.rateLimitDenied
}

func (c *promCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.h.metrics
	total := atomic.LoadInt64(&m.TotalRequests)
	success := atomic.LoadInt64(&m.SuccessRequests)
	totalLatency := atomic.LoadInt64(&m.TotalLatencyMs)
	var avgLatency float64
	if success > 0 {
		avgLatency = float64(totalLatency) / float64(success)
	}

	ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.successRequests, prometheus.CounterValue, float64(success))
	ch <- prometheus.MustNewConstMetric(c.errorRequests, prometheus.CounterValue, float64(atomic.LoadInt64(&m.ErrorRequests)))
	ch <- prometheus.MustNewConstMetric(c.streamRequests, prometheus.CounterValue, float64(atomic.LoadInt64(&m.StreamRequests)))
	ch <- prometheus.MustNewConstMetric(c.toolCallRequests, prometheus.CounterValue, float64(atomic.LoadInt64(&m.ToolCallRequests)))
	ch <- prometheus.MustNewConstMetric(c.cascadeExhausted, prometheus.CounterValue, float64(atomic.LoadInt64(&m.CascadeExhausted)))
	ch <- prometheus.MustNewConstMetric(c.avgLatencyMs, prometheus.GaugeValue, avgLatency)
	ch <- prometheus.MustNewConstMetric(c.uptimeSeconds, prometheus.GaugeValue, time.Since(m.StartTime).Seconds())

	if c.h.rateLimiter != nil {
		allowed, denied := c.h.rateLimiter.Stats()
		ch <- prometheus.MustNewConstMetric(c.rateLimitAllowed, prometheus.CounterValue, float64(allowed))
		ch <- prometheus.MustNewConstMetric(c.rateLimitDenied, prometheus.CounterValue, float64(denied))
	}
}

// PrometheusHandler serves /metrics/prometheus: text exposition format via
// client_golang's registry and promhttp, replacing CLASP's hand-rolled
// fmt.Fprintf text writer with the ecosystem's own exposition encoder.
func (h *Handler) PrometheusHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newPromCollector(h))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
