// Package metrics exports pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amishk599/jobscout/internal/runs"
)

const namespace = "jobscout"

// Metrics holds the pipeline collectors. It implements orchestrator.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Postings    *prometheus.CounterVec
	LastRunEnd  prometheus.Gauge
}

// New registers every collector on a fresh registry, so several instances
// can live side by side in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by trigger and final status.",
		}, []string{"trigger", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"trigger"}),
		Postings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_total",
			Help:      "Postings seen by the pipeline, by outcome.",
		}, []string{"outcome"}),
		LastRunEnd: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
}

func (m *Metrics) RunFinished(trigger runs.Trigger, status runs.Status, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(string(trigger), string(status)).Inc()
	m.RunDuration.WithLabelValues(string(trigger)).Observe(elapsed.Seconds())
	m.LastRunEnd.SetToCurrentTime()
}

func (m *Metrics) PostingsProcessed(c runs.Counts) {
	for outcome, n := range map[string]int{
		"found":           c.Found,
		"duplicate":       c.SkippedDuplicate,
		"analyzed":        c.Analyzed,
		"analysis_failed": c.AnalysisFailed,
		"relevant":        c.Relevant,
		"persisted":       c.Persisted,
		"persist_failed":  c.PersistFailed,
		"scrape_error":    c.ScrapeErrors,
	} {
		m.Postings.WithLabelValues(outcome).Add(float64(n))
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
