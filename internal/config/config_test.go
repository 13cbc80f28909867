package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"REDIS_URL", "DATABASE_URL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "ROLECALL_CONFIG",
		"WEBSHARE_PROXY_HOST", "WEBSHARE_PROXY_PORT", "WEBSHARE_PROXY_USER", "WEBSHARE_PROXY_PASS",
	} {
		t.Setenv(k, "")
	}
}

const minimal = `
redis_url: redis://localhost:6379/0
database_url: sqlite://rolecall.db
ai:
  enabled: false
`

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	scrape := cfg.Queues.Scrape
	if scrape.Concurrency != 2 || scrape.Attempts != 3 || scrape.Backoff != 5*time.Second || scrape.RateLimit != 10*time.Second {
		t.Errorf("scrape queue = %+v", scrape)
	}
	triage := cfg.Queues.Triage
	if triage.Concurrency != 5 || triage.Attempts != 2 || triage.Backoff != 3*time.Second || triage.KeepCompleted != 200 {
		t.Errorf("triage queue = %+v", triage)
	}
	if cfg.Janitor.Interval != 15*time.Minute || cfg.Janitor.StaleAfter != 2*time.Hour {
		t.Errorf("janitor = %+v", cfg.Janitor)
	}
	if cfg.HTTPAddr != ":8081" || cfg.Notification.Type != "log" {
		t.Errorf("http_addr = %q, notification = %q", cfg.HTTPAddr, cfg.Notification.Type)
	}
	if cfg.Location != time.Local {
		t.Errorf("location = %v, want Local", cfg.Location)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := writeConfig(t, `
redis_url: redis://redis:6379/1
database_url: postgres://rolecall@db/rolecall
timezone: Australia/Brisbane
http_addr: ":9090"
queues:
  scrape: {concurrency: 1, attempts: 4, backoff: 10s, rate_limit: 30s, keep_completed: 10, keep_failed: 5}
  triage: {concurrency: 8}
ai:
  provider: openai
  model: gpt-4o
  api_key: ${TEST_OPENAI_KEY}
  timeout: 45s
  requests_per_second: 2
proxy: {host: p.webshare.io, port: "80", user: u, pass: p}
notification:
  type: slack
  webhook_url: https://hooks.slack.com/services/T000/B000/XXX
janitor: {interval: 5m, stale_after: 1h}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Location.String() != "Australia/Brisbane" {
		t.Errorf("location = %v", cfg.Location)
	}
	if s := cfg.Queues.Scrape; s.Concurrency != 1 || s.Attempts != 4 || s.RateLimit != 30*time.Second || s.KeepFailed != 5 {
		t.Errorf("scrape queue = %+v", s)
	}
	if tq := cfg.Queues.Triage; tq.Concurrency != 8 || tq.Attempts != 2 {
		t.Errorf("triage queue = %+v, want overridden concurrency and default attempts", tq)
	}
	if !cfg.AI.Enabled || cfg.AI.APIKey != "sk-test" || cfg.AI.BaseURL != "https://api.openai.com/v1" || cfg.AI.Timeout != 45*time.Second {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.Proxy.Host != "p.webshare.io" || cfg.Proxy.Port != "80" {
		t.Errorf("proxy = %+v", cfg.Proxy)
	}
	if cfg.Janitor.StaleAfter != time.Hour {
		t.Errorf("stale_after = %v", cfg.Janitor.StaleAfter)
	}
}

func TestLoad_EnvironmentFillsGaps(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://env:6379/0")
	t.Setenv("DATABASE_URL", "sqlite:///tmp/env.db")
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	t.Setenv("WEBSHARE_PROXY_HOST", "proxy.example.com")

	cfg, err := Load(writeConfig(t, "ai:\n  provider: anthropic\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisURL != "redis://env:6379/0" || cfg.DatabaseURL != "sqlite:///tmp/env.db" {
		t.Errorf("urls = %q, %q", cfg.RedisURL, cfg.DatabaseURL)
	}
	if cfg.AI.APIKey != "ant-key" || cfg.AI.BaseURL != "https://api.anthropic.com" || cfg.AI.Model == "" {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.Proxy.Host != "proxy.example.com" {
		t.Errorf("proxy host = %q", cfg.Proxy.Host)
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("DATABASE_URL", "sqlite://rolecall.db")
	t.Setenv("OPENAI_API_KEY", "sk")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != ProviderOpenAI || cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("ai = %+v", cfg.AI)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml")); err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "queues: [broken")); err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing redis",
			content: "database_url: sqlite://x.db\nai: {enabled: false}\n",
			wantErr: "redis_url",
		},
		{
			name:    "missing database",
			content: "redis_url: redis://r\nai: {enabled: false}\n",
			wantErr: "database_url",
		},
		{
			name:    "zero concurrency",
			content: minimal + "queues:\n  scrape: {concurrency: 0}\n",
			wantErr: "queues.scrape.concurrency",
		},
		{
			name:    "ai without key",
			content: "redis_url: redis://r\ndatabase_url: sqlite://x.db\nai: {enabled: true}\n",
			wantErr: "ai.api_key",
		},
		{
			name:    "unknown provider",
			content: "redis_url: redis://r\ndatabase_url: sqlite://x.db\nai: {provider: gemini, api_key: k, model: m}\n",
			wantErr: "ai.provider",
		},
		{
			name:    "slack without webhook",
			content: minimal + "notification: {type: slack}\n",
			wantErr: "webhook_url is required",
		},
		{
			name:    "slack with wrong host",
			content: minimal + "notification: {type: slack, webhook_url: https://example.com/hook}\n",
			wantErr: "must start with",
		},
		{
			name:    "bad duration",
			content: minimal + "janitor: {interval: soon}\n",
			wantErr: "janitor.interval",
		},
		{
			name:    "bad timezone",
			content: minimal + "timezone: Mars/Olympus\n",
			wantErr: "timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	if got := Locate("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("Locate(explicit) = %q", got)
	}
	if got := Locate(""); got != "" {
		t.Errorf("Locate() without config.yaml = %q, want empty", got)
	}

	if err := os.WriteFile("config.yaml", []byte(minimal), 0644); err != nil {
		t.Fatal(err)
	}
	if got := Locate(""); got != "config.yaml" {
		t.Errorf("Locate() = %q, want config.yaml", got)
	}

	t.Setenv("ROLECALL_CONFIG", "/etc/rolecall.yaml")
	if got := Locate(""); got != "/etc/rolecall.yaml" {
		t.Errorf("Locate() with env = %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ROLECALL_DOTENV_TEST", "")
	os.Unsetenv("ROLECALL_DOTENV_TEST")

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv without files: %v", err)
	}
	if err := os.WriteFile(".env", []byte("ROLECALL_DOTENV_TEST=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("ROLECALL_DOTENV_TEST"); got != "from-file" {
		t.Errorf("ROLECALL_DOTENV_TEST = %q, want from-file", got)
	}
}
