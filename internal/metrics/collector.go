// Package metrics exposes scheduler progress to Prometheus.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geetools/exportsched/internal/cmn/config"
	"github.com/geetools/exportsched/internal/scheduler"
)

// Result label values of exportsched_jobs_finished_total.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

var _ scheduler.Observer = (*Collector)(nil)

// Collector counts job transitions reported by a scheduler run.
type Collector struct {
	registry *prometheus.Registry
	started  prometheus.Counter
	finished *prometheus.CounterVec
	inFlight prometheus.Gauge

	mu     sync.Mutex
	active map[string]struct{}
}

// NewCollector creates a collector with its own registry, which also
// carries the Go runtime and build info collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		active:   make(map[string]struct{}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exportsched_jobs_started_total",
			Help: "Jobs submitted or adopted by the scheduler",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exportsched_jobs_finished_total",
			Help: "Jobs that reached a terminal state, by result",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exportsched_jobs_in_flight",
			Help: "Jobs currently running on the platform",
		}),
	}
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "exportsched_info",
		Help:        "exportsched build information",
		ConstLabels: prometheus.Labels{"version": config.Version},
	})
	info.Set(1)

	c.registry.MustRegister(
		c.started,
		c.finished,
		c.inFlight,
		info,
		collectors.NewGoCollector(),
		collectors.NewBuildInfoCollector(),
	)
	// Both results are exported from the start.
	c.finished.WithLabelValues(ResultSucceeded)
	c.finished.WithLabelValues(ResultFailed)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) JobStarted(_ context.Context, job *scheduler.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started.Inc()
	if _, ok := c.active[job.ID()]; !ok {
		c.active[job.ID()] = struct{}{}
		c.inFlight.Inc()
	}
}

// JobFinished counts the result. Jobs that never started, such as those
// failed by a dependency, do not touch the in-flight gauge.
func (c *Collector) JobFinished(_ context.Context, job *scheduler.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[job.ID()]; ok {
		delete(c.active, job.ID())
		c.inFlight.Dec()
	}
	if job.Succeeded() {
		c.finished.WithLabelValues(ResultSucceeded).Inc()
		return
	}
	c.finished.WithLabelValues(ResultFailed).Inc()
}
