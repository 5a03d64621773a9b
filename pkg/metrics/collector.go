// Package metrics provides Prometheus-compatible metrics collection for the
// browser pool and the HTTP conversion service built on top of it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all metrics exposed by this service.
const namespace = "html2pdf"

// Collector holds every metric the pool and the conversion service report.
// All fields are safe for concurrent use; the underlying prometheus types
// handle their own locking.
type Collector struct {
	// Pool occupancy
	PoolAvailable prometheus.Gauge
	PoolActive    prometheus.Gauge

	// Pool lifecycle counters
	InstancesCreated        prometheus.Counter
	InstancesCreationFailed prometheus.Counter
	InstancesRetired        prometheus.Counter
	PingFailures            prometheus.Counter
	Acquired                prometheus.Counter

	// Latency histograms
	AcquireLatency   prometheus.Histogram
	ConversionLatency *prometheus.HistogramVec

	// Conversion outcome counters
	ConversionsTotal  *prometheus.CounterVec
	ConversionsFailed *prometheus.CounterVec
}

// NewCollector creates and registers a Collector against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		PoolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_available",
			Help:      "Number of idle browser instances ready to be leased.",
		}),
		PoolActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_active",
			Help:      "Number of tracked browser instances, idle or leased.",
		}),
		InstancesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_created_total",
			Help:      "Total browser instances successfully created and validated.",
		}),
		InstancesCreationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_creation_failed_total",
			Help:      "Total browser instance creation or validation failures.",
		}),
		InstancesRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_retired_total",
			Help:      "Total browser instances retired (TTL expiry or health check failure).",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_failures_total",
			Help:      "Total keep-alive ping failures across all instances.",
		}),
		Acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquired_total",
			Help:      "Total successful Acquire calls.",
		}),
		AcquireLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquire_latency_seconds",
			Help:      "Time spent in Acquire, from call to lease returned.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ConversionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_latency_seconds",
			Help:      "End-to-end PDF conversion latency by source kind (url, html).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ConversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Total conversion requests by source kind.",
		}, []string{"kind"}),
		ConversionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_failed_total",
			Help:      "Total failed conversion requests by source kind.",
		}, []string{"kind"}),
	}

	c.register()
	return c
}

func (c *Collector) register() {
	prometheus.MustRegister(
		c.PoolAvailable,
		c.PoolActive,
		c.InstancesCreated,
		c.InstancesCreationFailed,
		c.InstancesRetired,
		c.PingFailures,
		c.Acquired,
		c.AcquireLatency,
		c.ConversionLatency,
		c.ConversionsTotal,
		c.ConversionsFailed,
	)
}

// Handler returns the HTTP handler Prometheus should scrape.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}

func (c *Collector) SetAvailable(n int) { c.PoolAvailable.Set(float64(n)) }
func (c *Collector) SetActive(n int)    { c.PoolActive.Set(float64(n)) }

func (c *Collector) IncCreated()         { c.InstancesCreated.Inc() }
func (c *Collector) IncCreationFailure() { c.InstancesCreationFailed.Inc() }
func (c *Collector) IncRetired()         { c.InstancesRetired.Inc() }
func (c *Collector) IncPingFailure()     { c.PingFailures.Inc() }
func (c *Collector) IncAcquired()        { c.Acquired.Inc() }

func (c *Collector) ObserveAcquireLatency(d time.Duration) {
	c.AcquireLatency.Observe(d.Seconds())
}

func (c *Collector) ObserveConversion(kind string, d time.Duration, err error) {
	c.ConversionsTotal.WithLabelValues(kind).Inc()
	c.ConversionLatency.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		c.ConversionsFailed.WithLabelValues(kind).Inc()
	}
}
