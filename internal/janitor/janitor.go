// Package janitor seals scrape runs left open by a worker that died mid-run.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/rolecall/internal/metrics"
)

// AbandonedMessage is recorded on every run the janitor seals.
const AbandonedMessage = "abandoned: worker stopped before the run completed"

// DefaultStaleAfter is how long a run may stay running before it is abandoned.
const DefaultStaleAfter = 2 * time.Hour

// RunSealer fails running runs that started before a cutoff.
type RunSealer interface {
	FailStaleScrapeRuns(ctx context.Context, startedBefore time.Time, msg string) (int64, error)
}

// Janitor sweeps stale scrape runs.
type Janitor struct {
	runs       RunSealer
	staleAfter time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New returns a janitor. A non-positive staleAfter uses DefaultStaleAfter.
func New(runs RunSealer, staleAfter time.Duration, m *metrics.Metrics, logger *slog.Logger) *Janitor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Janitor{
		runs:       runs,
		staleAfter: staleAfter,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep seals every run still running after the stale window and returns how
// many it sealed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.staleAfter)
	n, err := j.runs.FailStaleScrapeRuns(ctx, cutoff, AbandonedMessage)
	if err != nil {
		return 0, err
	}
	j.metrics.StaleRunsSealed(n)
	if n > 0 {
		j.logger.Warn("sealed abandoned scrape runs", "count", n, "started_before", cutoff)
	} else {
		j.logger.Debug("no abandoned scrape runs")
	}
	return n, nil
}

// Run is Sweep for cron: errors are logged.
func (j *Janitor) Run(ctx context.Context) {
	if _, err := j.Sweep(ctx); err != nil {
		j.logger.Error("janitor sweep failed", "error", err)
	}
}
