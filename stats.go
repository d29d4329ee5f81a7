// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	NopStatsClient = &nopStatsClient{}
}

// Metric names emitted by the scheduler and the instance pools.
const (
	MetricJobs            = "jobs"
	MetricQueuedJoblets   = "queued_joblets"
	MetricUnitFailures    = "unit_failures"
	MetricActiveInstances = "active_instances"
	MetricUnitDuration    = "unit_duration"
)

// StatsClient represents a client to a stats sink.
type StatsClient interface {
	// Tracks the number of times something occurs.
	Count(name string, value int64, rate float64)

	// Sets the value of a metric.
	Gauge(name string, value float64, rate float64)

	// Tracks timing information for a metric.
	Timing(name string, value time.Duration, rate float64)
}

// NopStatsClient represents a client that doesn't do anything.
var NopStatsClient StatsClient

type nopStatsClient struct{}

func (c *nopStatsClient) Count(name string, value int64, rate float64)          {}
func (c *nopStatsClient) Gauge(name string, value float64, rate float64)        {}
func (c *nopStatsClient) Timing(name string, value time.Duration, rate float64) {}

// prometheusStatsClient bridges StatsClient onto a prometheus
// registerer. Collectors are created on first use per metric name.
type prometheusStatsClient struct {
	registerer prometheus.Registerer

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	timings  map[string]prometheus.Histogram
}

// NewPrometheusStatsClient returns a StatsClient that registers its
// collectors with registerer under the parexpr namespace. A nil
// registerer uses the prometheus default.
func NewPrometheusStatsClient(registerer prometheus.Registerer) StatsClient {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &prometheusStatsClient{
		registerer: registerer,
		counters:   map[string]prometheus.Counter{},
		gauges:     map[string]prometheus.Gauge{},
		timings:    map[string]prometheus.Histogram{},
	}
}

func (c *prometheusStatsClient) Count(name string, value int64, rate float64) {
	c.mu.Lock()
	ctr, ok := c.counters[name]
	if !ok {
		ctr = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: EnvPrefix,
			Name:      name,
		})
		c.registerer.MustRegister(ctr)
		c.counters[name] = ctr
	}
	c.mu.Unlock()
	ctr.Add(float64(value))
}

func (c *prometheusStatsClient) Gauge(name string, value float64, rate float64) {
	c.mu.Lock()
	g, ok := c.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: EnvPrefix,
			Name:      name,
		})
		c.registerer.MustRegister(g)
		c.gauges[name] = g
	}
	c.mu.Unlock()
	g.Set(value)
}

func (c *prometheusStatsClient) Timing(name string, value time.Duration, rate float64) {
	c.mu.Lock()
	h, ok := c.timings[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: EnvPrefix,
			Name:      name,
		})
		c.registerer.MustRegister(h)
		c.timings[name] = h
	}
	c.mu.Unlock()
	h.Observe(value.Seconds())
}
