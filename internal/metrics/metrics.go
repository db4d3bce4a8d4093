// Package metrics exposes Prometheus counters for fetch, ingestion, analysis
// and stage inference. A nil *Metrics is valid and records nothing, so
// components can be constructed without instrumentation in tests and one-shot
// CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"djenwatch/internal/services"
)

const namespace = "djenwatch"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched  prometheus.Counter
	fetchErrors   *prometheus.CounterVec
	commsIngested *prometheus.CounterVec
	analyses      *prometheus.CounterVec
	stageChanges  *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	lastSyncTS    prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_pages_fetched_total",
			Help:      "Result pages fetched from the communication directory",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_errors_total",
			Help:      "Directory request failures by kind",
		}, []string{"kind"}),
		commsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "communications_ingested_total",
			Help:      "Communications offered to the store by outcome (saved, skipped, failed)",
		}, []string{"outcome"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_analyses_total",
			Help:      "AI analysis attempts by result (ok, failed, restored)",
		}, []string{"result"}),
		stageChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_changes_total",
			Help:      "Case status overwrites by new stage",
		}, []string{"stage"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Wall time of a full sync pass",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastSyncTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_success_timestamp_seconds",
			Help:      "Unix time of the last sync pass that finished without a fatal error",
		}),
	}
	m.registry.MustRegister(
		m.pagesFetched,
		m.fetchErrors,
		m.commsIngested,
		m.analyses,
		m.stageChanges,
		m.syncDuration,
		m.lastSyncTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
}

func (m *Metrics) FetchFailed(err error) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(services.Kind(err)).Inc()
}

func (m *Metrics) Ingested(saved, skipped, failed int) {
	if m == nil {
		return
	}
	m.commsIngested.WithLabelValues("saved").Add(float64(saved))
	m.commsIngested.WithLabelValues("skipped").Add(float64(skipped))
	m.commsIngested.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) Analysis(result string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(result).Inc()
}

func (m *Metrics) StageChanged(stage string) {
	if m == nil {
		return
	}
	m.stageChanges.WithLabelValues(stage).Inc()
}

// SyncFinished records a pass duration and, when ok, the success timestamp.
func (m *Metrics) SyncFinished(started time.Time, ok bool) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(time.Since(started).Seconds())
	if ok {
		m.lastSyncTS.SetToCurrentTime()
	}
}
