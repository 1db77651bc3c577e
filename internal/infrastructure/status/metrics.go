// Package status exposes run health and Prometheus metrics while in watch mode.
package status

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// Metrics records run outcomes. It is a Notifier so the pipeline reports into it directly.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	delivered   prometheus.Counter
	renderFails prometheus.Counter
	deleted     prometheus.Counter
	deleteFails prometheus.Counter
	dropped     prometheus.Counter
	onDevice    prometheus.Gauge
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	runDuration prometheus.Histogram

	mu   sync.RWMutex
	last *domain.RunReport
}

var _ ports.Notifier = (*Metrics)(nil)

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "readersync",
			Name:      "runs_total",
			Help:      "Sync runs by outcome.",
		}, []string{"status"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "readersync",
			Name:      "articles_delivered_total",
			Help:      "Articles rendered and uploaded to the device.",
		}),
		renderFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "readersync",
			Name:      "articles_failed_total",
			Help:      "Admitted articles that could not be rendered or uploaded.",
		}),
		deleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "readersync",
			Name:      "articles_deleted_total",
			Help:      "Device files removed as read or stale.",
		}),
		deleteFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "readersync",
			Name:      "delete_failures_total",
			Help:      "Device removals that failed or were refused.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "readersync",
			Name:      "articles_dropped_total",
			Help:      "New articles skipped for lack of device space.",
		}),
		onDevice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "readersync",
			Name:      "device_articles",
			Help:      "Articles found in the device folder at the start of the last run.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "readersync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Finish time of the last run.",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "readersync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Finish time of the last successful run.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "readersync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PublishReport folds a run report into the metrics.
func (m *Metrics) PublishReport(_ context.Context, r domain.RunReport) error {
	m.runs.WithLabelValues(string(r.Status)).Inc()
	m.delivered.Add(float64(len(r.Delivered)))
	m.renderFails.Add(float64(len(r.Failed)))
	m.deleted.Add(float64(len(r.Deleted)))
	m.deleteFails.Add(float64(len(r.DeleteFails)))
	m.dropped.Add(float64(r.Dropped))
	m.onDevice.Set(float64(r.Existing))
	if !r.FinishedAt.IsZero() {
		m.lastRun.Set(float64(r.FinishedAt.Unix()))
		if r.Succeeded() {
			m.lastSuccess.Set(float64(r.FinishedAt.Unix()))
		}
		if !r.StartedAt.IsZero() {
			m.runDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
		}
	}

	m.mu.Lock()
	m.last = &r
	m.mu.Unlock()
	return nil
}

// Last returns the most recent report.
func (m *Metrics) Last() (domain.RunReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return domain.RunReport{}, false
	}
	return *m.last, true
}
