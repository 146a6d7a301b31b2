// Package metrics exposes Prometheus metrics for sync runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmate/aggregator-service/internal/model"
)

const (
	// Namespace is the namespace for all aggregator metrics.
	Namespace = "jobmate"
	// Subsystem is the subsystem for aggregator metrics.
	Subsystem = "aggregator"
)

// Metrics holds the aggregator collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	SourceOutcomesTotal *prometheus.CounterVec
	PostingsNewTotal    *prometheus.CounterVec
	PostingsUpdated     *prometheus.CounterVec
	RecordsFailedTotal  *prometheus.CounterVec
	DeactivatedTotal    prometheus.Counter
	RunDurationSeconds  prometheus.Histogram
	ActivePostings      prometheus.Gauge
	SyncRunning         prometheus.Gauge
	TriggersRejected    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}
	m.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "runs_total",
		Help: "Completed sync runs by result (ok, sweep_failed).",
	}, []string{"result"})
	m.SourceOutcomesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "source_outcomes_total",
		Help: "Per-source run outcomes.",
	}, []string{"source", "status"})
	m.PostingsNewTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "postings_new_total",
		Help: "Postings inserted for the first time.",
	}, []string{"source"})
	m.PostingsUpdated = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "postings_updated_total",
		Help: "Existing postings refreshed by a run.",
	}, []string{"source"})
	m.RecordsFailedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "records_failed_total",
		Help: "Raw records skipped because they could not be normalized.",
	}, []string{"source"})
	m.DeactivatedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "postings_deactivated_total",
		Help: "Postings deactivated by the staleness sweep.",
	})
	m.RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name:    "run_duration_seconds",
		Help:    "Wall-clock duration of sync runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	})
	m.ActivePostings = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "active_postings",
		Help: "Active postings after the last run.",
	})
	m.SyncRunning = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "sync_running",
		Help: "1 while a sync run is in progress on this instance.",
	})
	m.TriggersRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "triggers_rejected_total",
		Help: "Triggers rejected because a run was already in progress.",
	}, []string{"trigger"})
	return m
}

// ObserveRun records one finished run. A negative activePostings leaves the
// gauge untouched.
func (m *Metrics) ObserveRun(report *model.RunReport, activePostings int64) {
	result := "ok"
	if report.SweepError != "" {
		result = "sweep_failed"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDurationSeconds.Observe(report.Duration().Seconds())
	m.DeactivatedTotal.Add(float64(report.Deactivated))

	for _, s := range report.Sources {
		src := string(s.Name)
		m.SourceOutcomesTotal.WithLabelValues(src, string(s.Status)).Inc()
		m.PostingsNewTotal.WithLabelValues(src).Add(float64(s.NewCount))
		m.PostingsUpdated.WithLabelValues(src).Add(float64(s.UpdatedCount))
		m.RecordsFailedTotal.WithLabelValues(src).Add(float64(s.FailedCount))
	}
	if activePostings >= 0 {
		m.ActivePostings.Set(float64(activePostings))
	}
}

// SetRunning flips the in-progress gauge.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.SyncRunning.Set(1)
		return
	}
	m.SyncRunning.Set(0)
}

// TriggerRejected counts a busy rejection for the given trigger kind.
func (m *Metrics) TriggerRejected(trigger string) {
	m.TriggersRejected.WithLabelValues(trigger).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
