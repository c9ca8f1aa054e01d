// Package metrics exposes sweep counters for Prometheus scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/scan-sweeper/internal/model"
)

// Recorder turns item and batch outcomes into Prometheus series. It keeps its
// own registry so the default one is left alone.
type Recorder struct {
	registry *prometheus.Registry

	itemsTotal    *prometheus.CounterVec
	findingsTotal prometheus.Counter
	reportsTotal  prometheus.Counter
	batchesTotal  *prometheus.CounterVec
	cursor        prometheus.Gauge
	lastBatch     prometheus.Gauge
	batchDuration prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.itemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_items_total",
		Help: "Work items processed, by outcome",
	}, []string{"outcome"})
	r.findingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_reportable_findings_total",
		Help: "Findings that passed the severity filter",
	})
	r.reportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_reports_total",
		Help: "Filtered reports written",
	})
	r.batchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_batches_total",
		Help: "Finished batches, by final status",
	}, []string{"status"})
	r.cursor = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sweeper_cursor",
		Help: "Cursor persisted at the end of the last batch",
	})
	r.lastBatch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sweeper_last_batch_timestamp_seconds",
		Help: "Unix time the last batch finished",
	})
	r.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweeper_batch_duration_seconds",
		Help:    "Wall time of whole batches",
		Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
	})

	r.registry.MustRegister(
		r.itemsTotal,
		r.findingsTotal,
		r.reportsTotal,
		r.batchesTotal,
		r.cursor,
		r.lastBatch,
		r.batchDuration,
	)
	return r
}

func (r *Recorder) ObserveItem(o model.ItemOutcome) {
	r.itemsTotal.WithLabelValues(string(o.Outcome)).Inc()
	if o.Reportable > 0 {
		r.findingsTotal.Add(float64(o.Reportable))
	}
	if o.ReportPath != "" {
		r.reportsTotal.Inc()
	}
}

func (r *Recorder) ObserveRun(run model.RunInfo) {
	r.batchesTotal.WithLabelValues(string(run.Status)).Inc()
	r.cursor.Set(float64(run.EndCursor))
	if run.FinishedAt.IsZero() {
		return
	}
	r.lastBatch.Set(float64(run.FinishedAt.Unix()))
	if !run.StartedAt.IsZero() {
		r.batchDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
