package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amishk599/rolecall/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestHealthAlwaysOK(t *testing.T) {
	s := New(":0", prometheus.NewRegistry(), nil, discardLogger())
	if code, _ := get(t, s.Handler(), "/health"); code != http.StatusOK {
		t.Errorf("/health = %d, want 200", code)
	}
}

func TestReadyFollowsFlagAndChecks(t *testing.T) {
	var redisErr error
	checks := map[string]Check{
		"redis": func(context.Context) error { return redisErr },
	}
	s := New(":0", prometheus.NewRegistry(), checks, discardLogger())

	if code, body := get(t, s.Handler(), "/ready"); code != http.StatusServiceUnavailable || !strings.Contains(body, "starting") {
		t.Errorf("/ready before SetReady = %d %s", code, body)
	}

	s.SetReady(true)
	if code, _ := get(t, s.Handler(), "/ready"); code != http.StatusOK {
		t.Errorf("/ready = %d, want 200", code)
	}

	redisErr = errors.New("connection refused")
	code, body := get(t, s.Handler(), "/ready")
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "connection refused") {
		t.Errorf("/ready with failing check = %d %s", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.ScrapeRunFinished("seek", "completed", time.Second)

	s := New(":0", reg, nil, discardLogger())
	code, body := get(t, s.Handler(), "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics = %d", code)
	}
	if !strings.Contains(body, `board="seek"`) {
		t.Errorf("metrics output missing scrape run series:\n%s", body)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", prometheus.NewRegistry(), nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
