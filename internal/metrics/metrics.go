// Package metrics provides the Prometheus collectors for the scrape and triage pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rolecall"

// Metrics holds all pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ScrapeRunsTotal       *prometheus.CounterVec
	ScrapeDurationSeconds *prometheus.HistogramVec
	ListingsTotal         *prometheus.CounterVec
	TriageResultsTotal    *prometheus.CounterVec
	QueueJobsTotal        *prometheus.CounterVec
	StaleRunsSealedTotal  prometheus.Counter
}

// NewMetrics creates and registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScrapeRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrape_runs_total",
				Help:      "Scrape runs sealed, by board and final status",
			},
			[]string{"board", "status"},
		),
		ScrapeDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Wall time of one (profile, board) scrape",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"board"},
		),
		ListingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listings_total",
				Help:      "Scraped listings by board and dedup outcome (new or duplicate)",
			},
			[]string{"board", "outcome"},
		),
		TriageResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triage_results_total",
				Help:      "Listings triaged, by recommendation",
			},
			[]string{"recommendation"},
		),
		QueueJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_jobs_total",
				Help:      "Queue job outcomes (completed, retried, failed, released)",
			},
			[]string{"queue", "outcome"},
		),
		StaleRunsSealedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_runs_sealed_total",
				Help:      "Scrape runs sealed as failed by the janitor",
			},
		),
	}
}

// ScrapeRunFinished records a sealed run.
func (m *Metrics) ScrapeRunFinished(board, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeRunsTotal.WithLabelValues(board, status).Inc()
	m.ScrapeDurationSeconds.WithLabelValues(board).Observe(elapsed.Seconds())
}

// ListingSeen records one upserted listing.
func (m *Metrics) ListingSeen(board string, isNew bool) {
	if m == nil {
		return
	}
	outcome := "duplicate"
	if isNew {
		outcome = "new"
	}
	m.ListingsTotal.WithLabelValues(board, outcome).Inc()
}

// Triaged records one classification.
func (m *Metrics) Triaged(recommendation string) {
	if m == nil {
		return
	}
	m.TriageResultsTotal.WithLabelValues(recommendation).Inc()
}

// JobFinished records a queue job outcome.
func (m *Metrics) JobFinished(queue, outcome string) {
	if m == nil {
		return
	}
	m.QueueJobsTotal.WithLabelValues(queue, outcome).Inc()
}

// StaleRunsSealed records runs reconciled by the janitor.
func (m *Metrics) StaleRunsSealed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.StaleRunsSealedTotal.Add(float64(n))
}

// Handler serves the collectors gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
