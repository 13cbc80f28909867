package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the RoleCall worker.
type Config struct {
	RedisURL     string
	DatabaseURL  string
	Timezone     string
	Location     *time.Location // resolved from Timezone
	HTTPAddr     string
	Queues       QueuesConfig
	AI           AIConfig
	Proxy        ProxyConfig
	Scraper      ScraperConfig
	Notification NotificationConfig
	Janitor      JanitorConfig
}

// QueuesConfig holds the settings of both job queues.
type QueuesConfig struct {
	Scrape QueueConfig
	Triage QueueConfig
}

// QueueConfig controls one queue's worker pool and retry policy.
type QueueConfig struct {
	Concurrency   int
	Attempts      int
	Backoff       time.Duration // base delay, doubled per attempt
	RateLimit     time.Duration // minimum gap between job starts; zero disables
	KeepCompleted int
	KeepFailed    int
}

// AIConfig controls the triage classifier.
type AIConfig struct {
	Enabled           bool
	Provider          string // "openai" or "anthropic"
	BaseURL           string
	Model             string
	APIKey            string // expanded from env var by Load
	Timeout           time.Duration
	RequestsPerSecond float64
}

// ProxyConfig holds residential proxy credentials for boards that need them.
type ProxyConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// ScraperConfig tunes board fetching.
type ScraperConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// JanitorConfig controls the stale scrape-run sweep.
type JanitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	slackWebhookPrefix      = "https://hooks.slack.com/"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	RedisURL     string             `yaml:"redis_url"`
	DatabaseURL  string             `yaml:"database_url"`
	Timezone     string             `yaml:"timezone"`
	HTTPAddr     string             `yaml:"http_addr"`
	Queues       rawQueuesConfig    `yaml:"queues"`
	AI           rawAIConfig        `yaml:"ai"`
	Proxy        ProxyConfig        `yaml:"proxy"`
	Scraper      rawScraperConfig   `yaml:"scraper"`
	Notification NotificationConfig `yaml:"notification"`
	Janitor      rawJanitorConfig   `yaml:"janitor"`
}

type rawQueuesConfig struct {
	Scrape rawQueueConfig `yaml:"scrape"`
	Triage rawQueueConfig `yaml:"triage"`
}

type rawQueueConfig struct {
	Concurrency   *int   `yaml:"concurrency"`
	Attempts      *int   `yaml:"attempts"`
	Backoff       string `yaml:"backoff"`
	RateLimit     string `yaml:"rate_limit"`
	KeepCompleted *int   `yaml:"keep_completed"`
	KeepFailed    *int   `yaml:"keep_failed"`
}

type rawAIConfig struct {
	Enabled           *bool   `yaml:"enabled"`
	Provider          string  `yaml:"provider"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type rawScraperConfig struct {
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

type rawJanitorConfig struct {
	Interval   string `yaml:"interval"`
	StaleAfter string `yaml:"stale_after"`
}

// LoadDotEnv loads .env.local then .env from the working directory. Missing
// files are ignored; variables already set are never overwritten.
func LoadDotEnv() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Locate resolves the config path.
// Priority: explicit path > ROLECALL_CONFIG env var > "./config.yaml" if it exists.
// An empty result means run on defaults and environment only.
func Locate(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("ROLECALL_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// Load reads and parses the YAML config file at path, applies defaults and
// environment overrides, validates it, and returns Config. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	var raw rawConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		RedisURL:     raw.RedisURL,
		DatabaseURL:  raw.DatabaseURL,
		Timezone:     orDefault(raw.Timezone, "Local"),
		HTTPAddr:     orDefault(raw.HTTPAddr, ":8081"),
		Proxy:        raw.Proxy,
		Notification: raw.Notification,
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("parse timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	scrape, err := buildQueue("queues.scrape", raw.Queues.Scrape, QueueConfig{
		Concurrency: 2, Attempts: 3, Backoff: 5 * time.Second, RateLimit: 10 * time.Second,
		KeepCompleted: 100, KeepFailed: 50,
	})
	if err != nil {
		return nil, err
	}
	triage, err := buildQueue("queues.triage", raw.Queues.Triage, QueueConfig{
		Concurrency: 5, Attempts: 2, Backoff: 3 * time.Second,
		KeepCompleted: 200, KeepFailed: 50,
	})
	if err != nil {
		return nil, err
	}
	cfg.Queues = QueuesConfig{Scrape: scrape, Triage: triage}

	cfg.AI = AIConfig{
		Enabled:           raw.AI.Enabled == nil || *raw.AI.Enabled,
		Provider:          strings.ToLower(orDefault(raw.AI.Provider, ProviderOpenAI)),
		BaseURL:           raw.AI.BaseURL,
		Model:             raw.AI.Model,
		APIKey:            raw.AI.APIKey,
		RequestsPerSecond: raw.AI.RequestsPerSecond,
	}
	if cfg.AI.Timeout, err = parseDuration("ai.timeout", raw.AI.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI:
		cfg.AI.BaseURL = orDefault(cfg.AI.BaseURL, defaultOpenAIBaseURL)
		cfg.AI.Model = orDefault(cfg.AI.Model, defaultOpenAIModel)
	case ProviderAnthropic:
		cfg.AI.BaseURL = orDefault(cfg.AI.BaseURL, defaultAnthropicBaseURL)
		cfg.AI.Model = orDefault(cfg.AI.Model, defaultAnthropicModel)
	}

	cfg.Scraper.UserAgent = raw.Scraper.UserAgent
	if cfg.Scraper.Timeout, err = parseDuration("scraper.timeout", raw.Scraper.Timeout, 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.Janitor.Interval, err = parseDuration("janitor.interval", raw.Janitor.Interval, 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Janitor.StaleAfter, err = parseDuration("janitor.stale_after", raw.Janitor.StaleAfter, 2*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func buildQueue(name string, raw rawQueueConfig, def QueueConfig) (QueueConfig, error) {
	q := def
	if raw.Concurrency != nil {
		q.Concurrency = *raw.Concurrency
	}
	if raw.Attempts != nil {
		q.Attempts = *raw.Attempts
	}
	if raw.KeepCompleted != nil {
		q.KeepCompleted = *raw.KeepCompleted
	}
	if raw.KeepFailed != nil {
		q.KeepFailed = *raw.KeepFailed
	}

	var err error
	if q.Backoff, err = parseDuration(name+".backoff", raw.Backoff, def.Backoff); err != nil {
		return q, err
	}
	if q.RateLimit, err = parseDuration(name+".rate_limit", raw.RateLimit, def.RateLimit); err != nil {
		return q, err
	}
	return q, nil
}

// applyEnv fills fields the file left empty from well-known variables.
func applyEnv(cfg *Config) {
	setFromEnv(&cfg.RedisURL, "REDIS_URL")
	setFromEnv(&cfg.DatabaseURL, "DATABASE_URL")
	switch cfg.AI.Provider {
	case ProviderOpenAI:
		setFromEnv(&cfg.AI.APIKey, "OPENAI_API_KEY")
	case ProviderAnthropic:
		setFromEnv(&cfg.AI.APIKey, "ANTHROPIC_API_KEY")
	}
	setFromEnv(&cfg.Proxy.Host, "WEBSHARE_PROXY_HOST")
	setFromEnv(&cfg.Proxy.Port, "WEBSHARE_PROXY_PORT")
	setFromEnv(&cfg.Proxy.User, "WEBSHARE_PROXY_USER")
	setFromEnv(&cfg.Proxy.Pass, "WEBSHARE_PROXY_PASS")
}

func setFromEnv(field *string, key string) {
	if *field == "" {
		*field = os.Getenv(key)
	}
}

func parseDuration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, s, err)
	}
	return d, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.RedisURL == "" {
		errs = append(errs, errors.New("redis_url (or REDIS_URL) is required"))
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url (or DATABASE_URL) is required"))
	}

	for name, q := range map[string]QueueConfig{"scrape": cfg.Queues.Scrape, "triage": cfg.Queues.Triage} {
		if q.Concurrency <= 0 {
			errs = append(errs, fmt.Errorf("queues.%s.concurrency must be positive, got %d", name, q.Concurrency))
		}
		if q.Attempts <= 0 {
			errs = append(errs, fmt.Errorf("queues.%s.attempts must be positive, got %d", name, q.Attempts))
		}
		if q.Backoff < 0 || q.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("queues.%s durations must not be negative", name))
		}
	}

	if cfg.Janitor.Interval <= 0 || cfg.Janitor.StaleAfter <= 0 {
		errs = append(errs, errors.New("janitor.interval and janitor.stale_after must be positive"))
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			errs = append(errs, errors.New(`notification.webhook_url is required when type is "slack"`))
		} else if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			errs = append(errs, fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.type must be log or slack, got %q", cfg.Notification.Type))
	}

	if cfg.AI.Enabled {
		switch cfg.AI.Provider {
		case ProviderOpenAI, ProviderAnthropic:
		default:
			errs = append(errs, fmt.Errorf("ai.provider must be openai or anthropic, got %q", cfg.AI.Provider))
		}
		if cfg.AI.APIKey == "" {
			errs = append(errs, errors.New("ai.api_key is required when ai.enabled is true"))
		}
		if cfg.AI.Model == "" {
			errs = append(errs, errors.New("ai.model is required when ai.enabled is true"))
		}
		if cfg.AI.RequestsPerSecond < 0 {
			errs = append(errs, errors.New("ai.requests_per_second must not be negative"))
		}
	}

	return errors.Join(errs...)
}
