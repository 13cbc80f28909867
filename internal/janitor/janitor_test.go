package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/amishk599/rolecall/internal/metrics"
	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RecordingSealer captures the cutoff it was called with.
type RecordingSealer struct {
	Cutoff time.Time
	Msg    string
	N      int64
	Err    error
}

func (r *RecordingSealer) FailStaleScrapeRuns(_ context.Context, before time.Time, msg string) (int64, error) {
	r.Cutoff, r.Msg = before, msg
	return r.N, r.Err
}

func TestSweep_Cutoff(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	sealer := &RecordingSealer{N: 2}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	j := New(sealer, 90*time.Minute, m, discardLogger())
	j.now = func() time.Time { return now }

	n, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("sealed = %d, want 2", n)
	}
	if want := now.Add(-90 * time.Minute); !sealer.Cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", sealer.Cutoff, want)
	}
	if sealer.Msg != AbandonedMessage {
		t.Errorf("message = %q", sealer.Msg)
	}
	if got := testutil.ToFloat64(m.StaleRunsSealedTotal); got != 2 {
		t.Errorf("stale runs metric = %v, want 2", got)
	}
}

func TestNew_DefaultStaleAfter(t *testing.T) {
	j := New(&RecordingSealer{}, 0, nil, discardLogger())
	if j.staleAfter != DefaultStaleAfter {
		t.Errorf("staleAfter = %v, want %v", j.staleAfter, DefaultStaleAfter)
	}
}

func TestSweep_Error(t *testing.T) {
	j := New(&RecordingSealer{Err: errors.New("db gone")}, time.Hour, nil, discardLogger())
	if _, err := j.Sweep(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	// Run only logs
	j.Run(context.Background())
}

func TestSweep_OnlySealsRunningRuns(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	profile, err := s.SaveProfile(ctx, model.SearchProfile{
		UserID:              "user-1",
		Name:                "Admin",
		Keywords:            []string{"admin"},
		Boards:              []string{"seek", "jora"},
		ScrapeIntervalHours: 48,
	})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	stuck, _ := s.CreateScrapeRun(ctx, profile.ID, "seek")
	done, _ := s.CreateScrapeRun(ctx, profile.ID, "jora")
	if err := s.SealScrapeRun(ctx, done.ID, model.RunOutcome{Status: model.RunCompleted, JobsFound: 4}); err != nil {
		t.Fatalf("SealScrapeRun: %v", err)
	}

	j := New(s, 2*time.Hour, nil, discardLogger())

	// fresh runs are left alone
	if n, err := j.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("first sweep = %d, %v; want 0, nil", n, err)
	}

	j.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	n, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("sealed = %d, want 1", n)
	}

	got, _ := s.ScrapeRun(ctx, stuck.ID)
	if got.Status != model.RunFailed || got.ErrorMessage != AbandonedMessage {
		t.Errorf("stuck run = %+v, want failed/abandoned", got)
	}
	got, _ = s.ScrapeRun(ctx, done.ID)
	if got.Status != model.RunCompleted || got.JobsFound != 4 {
		t.Errorf("completed run changed: %+v", got)
	}

	// a sealed run cannot be sealed again by the worker that owned it
	if err := s.SealScrapeRun(ctx, stuck.ID, model.RunOutcome{Status: model.RunCompleted}); !errors.Is(err, store.ErrRunSealed) {
		t.Errorf("late seal err = %v, want ErrRunSealed", err)
	}
}
