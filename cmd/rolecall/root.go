package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/amishk599/rolecall/internal/ai"
	"github.com/amishk599/rolecall/internal/config"
	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/notifier"
	"github.com/amishk599/rolecall/internal/pipeline"
	"github.com/amishk599/rolecall/internal/queue"
	"github.com/amishk599/rolecall/internal/scraper"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "rolecall",
	Short: "Job board scraper and AI triage worker",
	Long:  "RoleCall scrapes Australian job boards for each saved search profile, dedups listings, and triages them with an LLM.",
	// Default to `start` so that `rolecall` with no args runs the worker.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: ROLECALL_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads .env files, resolves the config path and parses it.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	return config.Load(config.Locate(path))
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func setupClassifier(cfg *config.Config, logger *slog.Logger) model.Classifier {
	if !cfg.AI.Enabled {
		logger.Info("ai triage disabled, every job lands in the backlog")
		return ai.NewNopClassifier()
	}

	httpClient := &http.Client{Timeout: cfg.AI.Timeout + 5*time.Second}
	var provider ai.LLMProvider
	switch cfg.AI.Provider {
	case config.ProviderAnthropic:
		provider = ai.NewAnthropicProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
	default:
		provider = ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
	}
	logger.Info("ai triage enabled", "provider", cfg.AI.Provider, "model", cfg.AI.Model)

	return ai.NewTriageClassifier(provider, ai.ClassifierOptions{
		Timeout:           cfg.AI.Timeout,
		RequestsPerSecond: cfg.AI.RequestsPerSecond,
	}, logger)
}

func scraperOptions(cfg *config.Config) scraper.Options {
	return scraper.Options{
		Proxy: scraper.ProxyConfig{
			Host: cfg.Proxy.Host,
			Port: cfg.Proxy.Port,
			User: cfg.Proxy.User,
			Pass: cfg.Proxy.Pass,
		},
		Timeout:   cfg.Scraper.Timeout,
		UserAgent: cfg.Scraper.UserAgent,
	}
}

func queueOptions(q config.QueueConfig) queue.Options {
	return queue.Options{
		Attempts:      q.Attempts,
		Backoff:       q.Backoff,
		KeepCompleted: int64(q.KeepCompleted),
		KeepFailed:    int64(q.KeepFailed),
	}
}

func newScrapeQueue(rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *queue.Queue {
	return queue.New(rdb, pipeline.ScrapeQueue, queueOptions(cfg.Queues.Scrape), logger)
}

func newTriageQueue(rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *queue.Queue {
	return queue.New(rdb, pipeline.TriageQueue, queueOptions(cfg.Queues.Triage), logger)
}

// fail logs err and returns it so cobra exits non-zero.
func fail(logger *slog.Logger, msg string, err error) error {
	logger.Error(msg, "error", err)
	return fmt.Errorf("%s: %w", msg, err)
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
