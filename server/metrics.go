package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hupe1980/kstep"
	"github.com/hupe1980/kstep/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports engine and HTTP metrics to Prometheus.
// It implements kstep.MetricsCollector.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	iterations  *prometheus.HistogramVec
	runLatency  *prometheus.HistogramVec
	rejected    prometheus.Counter
	requests    *prometheus.CounterVec
	reqLatency  prometheus.Histogram
	inflight    prometheus.Gauge
	traceMemory prometheus.Gauge
}

var _ kstep.MetricsCollector = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg.
// If reg is nil a fresh registry is used.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kstep_runs_total",
			Help: "Clustering runs that passed validation, by init method and outcome",
		}, []string{"method", "outcome"}),
		iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kstep_run_iterations",
			Help:    "Iterations recorded per clustering run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}, []string{"method"}),
		runLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kstep_run_duration_seconds",
			Help:    "Latency of clustering runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kstep_rejected_requests_total",
			Help: "Clustering requests that failed validation",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kstep_http_requests_total",
			Help: "HTTP requests to the clustering endpoint, by status code",
		}, []string{"code"}),
		reqLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kstep_http_request_duration_seconds",
			Help:    "Latency of HTTP requests to the clustering endpoint",
			Buckets: prometheus.DefBuckets,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kstep_runs_inflight",
			Help: "Clustering runs currently executing",
		}),
		traceMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kstep_trace_memory_reserved_bytes",
			Help: "Trace memory reserved by in-flight runs",
		}),
	}

	reg.MustRegister(
		m.runs,
		m.iterations,
		m.runLatency,
		m.rejected,
		m.requests,
		m.reqLatency,
		m.inflight,
		m.traceMemory,
	)
	return m
}

// RecordRun implements kstep.MetricsCollector.
func (m *Metrics) RecordRun(method kstep.InitMethod, iterations int, converged bool, d time.Duration, err error) {
	outcome := "capped"
	switch {
	case err != nil:
		outcome = "error"
	case converged:
		outcome = "converged"
	}
	m.runs.WithLabelValues(string(method), outcome).Inc()
	m.iterations.WithLabelValues(string(method)).Observe(float64(iterations))
	m.runLatency.WithLabelValues(string(method)).Observe(d.Seconds())
}

// RecordRejected implements kstep.MetricsCollector.
func (m *Metrics) RecordRejected(error) {
	m.rejected.Inc()
}

func (m *Metrics) observeRequest(code int, d time.Duration) {
	m.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.reqLatency.Observe(d.Seconds())
}

func (m *Metrics) observeResources(c *resource.Controller) {
	m.inflight.Set(float64(c.Running()))
	m.traceMemory.Set(float64(c.MemoryUsage()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
