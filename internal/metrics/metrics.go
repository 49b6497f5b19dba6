// Package metrics holds the Prometheus collectors recorded by the pdfxl
// workflow and served by the dashboard at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfxl"

// Collector stores the workflow's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	uploadsTotal     *prometheus.CounterVec
	uploadBytesTotal prometheus.Counter
	uploadDuration   prometheus.Histogram
	pollsTotal       *prometheus.CounterVec
	pollDuration     prometheus.Histogram
	runsTotal        *prometheus.CounterVec
	runsActive       prometheus.Gauge
	downloadsTotal   *prometheus.CounterVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of batch submissions by outcome.",
			},
			[]string{"outcome"},
		),
		uploadBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_bytes_total",
				Help:      "Total number of request body bytes handed to the transport.",
			},
		),
		uploadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Submission request duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_polls_total",
				Help:      "Total number of status checks by outcome.",
			},
			[]string{"outcome"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "status_poll_duration_seconds",
				Help:      "Status check duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of finished workflow runs by final state.",
			},
			[]string{"state"},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_active",
				Help:      "Number of workflow runs currently uploading or processing.",
			},
		),
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Total number of result downloads by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.uploadsTotal,
		c.uploadBytesTotal,
		c.uploadDuration,
		c.pollsTotal,
		c.pollDuration,
		c.runsTotal,
		c.runsActive,
		c.downloadsTotal,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RunStarted marks a run as active.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsActive.Inc()
}

// RunFinished records the final state of a run that was started.
func (c *Collector) RunFinished(state string) {
	if c == nil {
		return
	}
	c.runsActive.Dec()
	c.runsTotal.WithLabelValues(state).Inc()
}

// RunRejected records a submission that never left the idle state.
func (c *Collector) RunRejected() {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues("rejected").Inc()
}

// ObserveUpload records one submission request.
func (c *Collector) ObserveUpload(outcome string, bytes int64, d time.Duration) {
	if c == nil {
		return
	}
	c.uploadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		c.uploadBytesTotal.Add(float64(bytes))
	}
	c.uploadDuration.Observe(d.Seconds())
}

// ObservePoll records one status check.
func (c *Collector) ObservePoll(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.pollsTotal.WithLabelValues(outcome).Inc()
	c.pollDuration.Observe(d.Seconds())
}

// ObserveDownload records one result download.
func (c *Collector) ObserveDownload(outcome string) {
	if c == nil {
		return
	}
	c.downloadsTotal.WithLabelValues(outcome).Inc()
}
