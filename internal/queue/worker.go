package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/rolecall/internal/ratelimit"
	"github.com/amishk599/rolecall/internal/retry"
)

const (
	defaultPollInterval  = time.Second
	defaultShutdownGrace = 30 * time.Second
)

// Handler processes one job. Returning an error wrapped with retry.Permanent
// fails the job without further attempts.
type Handler func(ctx context.Context, job Job) error

// Recorder observes job outcomes. metrics.Metrics satisfies it.
type Recorder interface {
	JobFinished(queue, outcome string)
}

// Job outcomes reported to a Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeReleased  = "released"
)

// WorkerOptions configure a worker pool.
type WorkerOptions struct {
	Concurrency int
	// Limiter, when set, gates every job start on a window shared by the
	// whole pool, independent of free concurrency slots.
	Limiter       *ratelimit.Limiter
	PollInterval  time.Duration
	ShutdownGrace time.Duration // how long in-flight jobs may run after shutdown begins
	Recorder      Recorder
}

// Worker pulls jobs from one queue and runs them on a bounded pool of goroutines.
type Worker struct {
	q       *Queue
	handler Handler
	opts    WorkerOptions
	logger  *slog.Logger
}

// NewWorker creates a worker for q.
func NewWorker(q *Queue, handler Handler, opts WorkerOptions, logger *slog.Logger) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	return &Worker{
		q:       q,
		handler: handler,
		opts:    opts,
		logger:  logger.With("queue", q.name),
	}
}

// Run processes jobs until ctx is cancelled, then waits for in-flight jobs.
// Jobs still running ShutdownGrace after cancellation see their context
// cancelled and are put back on the queue.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.q.requeueStalled(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Warn("requeued stalled jobs", "count", n)
	}

	w.logger.Info("worker started", "concurrency", w.opts.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		job, ok, err := w.next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("polling queue failed", "slot", slot, "error", err)
			}
			w.sleep(ctx)
			continue
		}
		if !ok {
			w.sleep(ctx)
			continue
		}

		if w.opts.Limiter != nil {
			if err := w.opts.Limiter.Wait(ctx, w.q.name); err != nil {
				w.settle(job, w.q.release(context.WithoutCancel(ctx), job), OutcomeReleased)
				return
			}
		}

		w.process(ctx, job)
	}
}

func (w *Worker) next(ctx context.Context) (Job, bool, error) {
	if err := w.q.promoteDelayed(ctx); err != nil {
		return Job{}, false, err
	}
	return w.q.claim(ctx)
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// process runs one job. The job context outlives ctx by ShutdownGrace so a
// shutdown lets in-flight work finish.
func (w *Worker) process(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		timer := time.AfterFunc(w.opts.ShutdownGrace, cancel)
		<-jobCtx.Done()
		timer.Stop()
	})
	defer stop()

	logger := w.logger.With("job_id", job.ID, "job", job.Name, "attempt", job.Attempts)
	logger.Debug("job started")
	start := time.Now()

	err := w.runHandler(jobCtx, job)

	// Redis bookkeeping must happen even when shutdown has begun.
	bg := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		logger.Info("job completed", "elapsed", time.Since(start))
		w.settle(job, w.q.complete(bg, job), OutcomeCompleted)

	case jobCtx.Err() != nil && ctx.Err() != nil:
		logger.Warn("job interrupted by shutdown, releasing", "error", err)
		w.settle(job, w.q.release(bg, job), OutcomeReleased)

	case retry.IsPermanent(err) || job.Attempts >= job.MaxAttempts:
		logger.Error("job failed", "max_attempts", job.MaxAttempts, "permanent", retry.IsPermanent(err), "error", err)
		w.settle(job, w.q.fail(bg, job, err), OutcomeFailed)

	default:
		delay := retry.Exponential(w.q.opts.Backoff, job.Attempts)
		logger.Warn("job failed, will retry", "delay", delay, "error", err)
		w.settle(job, w.q.retryLater(bg, job, err, delay), OutcomeRetried)
	}
}

// runHandler converts a handler panic into a job failure.
func (w *Worker) runHandler(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.handler(ctx, job)
}

func (w *Worker) settle(job Job, err error, outcome string) {
	if err != nil {
		w.logger.Error("updating job state failed", "job_id", job.ID, "error", err)
		return
	}
	if w.opts.Recorder != nil {
		w.opts.Recorder.JobFinished(w.q.name, outcome)
	}
}
