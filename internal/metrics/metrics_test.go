package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ScrapeRunFinished("seek", "completed", 3*time.Second)
	m.ListingSeen("seek", true)
	m.ListingSeen("seek", false)
	m.ListingSeen("seek", false)
	m.Triaged("recommended")
	m.JobFinished("scrape", "failed")
	m.StaleRunsSealed(2)
	m.StaleRunsSealed(0)

	if got := testutil.ToFloat64(m.ScrapeRunsTotal.WithLabelValues("seek", "completed")); got != 1 {
		t.Errorf("scrape runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ListingsTotal.WithLabelValues("seek", "duplicate")); got != 2 {
		t.Errorf("duplicate listings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TriageResultsTotal.WithLabelValues("recommended")); got != 1 {
		t.Errorf("triage results = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueJobsTotal.WithLabelValues("scrape", "failed")); got != 1 {
		t.Errorf("queue jobs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StaleRunsSealedTotal); got != 2 {
		t.Errorf("stale runs = %v, want 2", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ScrapeRunFinished("seek", "failed", time.Second)
	m.ListingSeen("seek", true)
	m.Triaged("maybe")
	m.JobFinished("triage", "completed")
	m.StaleRunsSealed(1)
}

func TestHandler_ServesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Triaged("maybe")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `rolecall_triage_results_total{recommendation="maybe"} 1`) {
		t.Errorf("metrics output missing triage counter:\n%s", body)
	}
}
