package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/rolecall/internal/dedup"
	"github.com/amishk599/rolecall/internal/health"
	"github.com/amishk599/rolecall/internal/janitor"
	"github.com/amishk599/rolecall/internal/metrics"
	"github.com/amishk599/rolecall/internal/pipeline"
	"github.com/amishk599/rolecall/internal/queue"
	"github.com/amishk599/rolecall/internal/ratelimit"
	"github.com/amishk599/rolecall/internal/scheduler"
	"github.com/amishk599/rolecall/internal/scraper"
	"github.com/amishk599/rolecall/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker",
	Long:  "Start the scheduler and both queue workers; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fail(logger, "failed to load config", err)
	}

	logger.Info("config loaded",
		"timezone", cfg.Location.String(),
		"scrape_concurrency", cfg.Queues.Scrape.Concurrency,
		"triage_concurrency", cfg.Queues.Triage.Concurrency,
		"ai_enabled", cfg.AI.Enabled,
		"proxy", cfg.Proxy.Host != "",
		"notification", cfg.Notification.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlStore, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(logger, "failed to open store", err)
	}
	defer sqlStore.Close()

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fail(logger, "failed to connect to redis", err)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	srv := health.New(cfg.HTTPAddr, reg, map[string]health.Check{
		"database": sqlStore.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, logger)

	// Seal runs orphaned by a previous process before anything new starts.
	sweeper := janitor.New(sqlStore, cfg.Janitor.StaleAfter, m, logger)
	if _, err := sweeper.Sweep(ctx); err != nil {
		return fail(logger, "failed to reconcile scrape runs", err)
	}

	scrapeQueue := newScrapeQueue(rdb, cfg, logger)
	triageQueue := newTriageQueue(rdb, cfg, logger)

	registry := scraper.Default(scraperOptions(cfg), logger)
	httpClient := &http.Client{Timeout: 30 * time.Second}
	scrapeProc := pipeline.NewScrapeProcessor(sqlStore, registry, dedup.New(sqlStore), triageQueue, m, logger)
	triageProc := pipeline.NewTriageProcessor(sqlStore, setupClassifier(cfg, logger), setupNotifier(cfg, httpClient, logger), m, logger)

	var limiter *ratelimit.Limiter
	if cfg.Queues.Scrape.RateLimit > 0 {
		limiter = ratelimit.NewLimiter(cfg.Queues.Scrape.RateLimit)
	}
	scrapeWorker := queue.NewWorker(scrapeQueue, scrapeProc.Handle, queue.WorkerOptions{
		Concurrency: cfg.Queues.Scrape.Concurrency,
		Limiter:     limiter,
		Recorder:    m,
	}, logger)
	triageWorker := queue.NewWorker(triageQueue, triageProc.Handle, queue.WorkerOptions{
		Concurrency: cfg.Queues.Triage.Concurrency,
		Recorder:    m,
	}, logger)

	sched := scheduler.New(sqlStore, scrapeQueue, scheduler.Options{Location: cfg.Location, Redis: rdb}, logger)
	if err := sched.AddHousekeeping("janitor", "@every "+cfg.Janitor.Interval.String(), sweeper.Run); err != nil {
		return fail(logger, "failed to schedule janitor", err)
	}
	queued, err := sched.Initialize(ctx)
	if err != nil {
		// Profiles that registered keep running; the broken ones are logged.
		logger.Error("some profiles failed to schedule", "error", err)
	}
	logger.Info("schedules initialised", "entries", len(sched.Keys()), "initial_scrapes", queued)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return scrapeWorker.Run(gctx) })
	g.Go(func() error { return triageWorker.Run(gctx) })

	srv.SetReady(true)
	logger.Info("worker started", "http_addr", cfg.HTTPAddr, "boards", registry.Boards())

	if err := g.Wait(); err != nil {
		return fail(logger, "worker stopped", err)
	}
	logger.Info("goodbye")
	return nil
}
