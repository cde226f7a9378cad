package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("default interval should be 60s, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Quotes.RequestTimeout != 12*time.Second {
		t.Fatalf("default quote timeout should be 12s, got %s", cfg.Quotes.RequestTimeout)
	}
	if cfg.Notify.Timeout != 15*time.Second {
		t.Fatalf("default notify timeout should be 15s, got %s", cfg.Notify.Timeout)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("default driver should be sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Analytics.RecentWindow != 7*24*time.Hour {
		t.Fatalf("default recent window should be 7 days, got %s", cfg.Analytics.RecentWindow)
	}
	if cfg.App.Name != "test" {
		t.Fatalf("file value not applied: %q", cfg.App.Name)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PRICEWATCH_SCHEDULER_INTERVAL", "5m")
	t.Setenv("PRICEWATCH_QUOTES_REQUEST_TIMEOUT", "10s")
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("env override not applied: %s", cfg.Scheduler.Interval)
	}
	if cfg.Quotes.RequestTimeout != 10*time.Second {
		t.Fatalf("env override not applied: %s", cfg.Quotes.RequestTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database:  DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"},
			Scheduler: SchedulerConfig{Interval: time.Minute, Concurrency: 1},
			Quotes:    QuotesConfig{RequestTimeout: time.Second},
			Notify:    NotifyConfig{Timeout: time.Second},
			Analytics: AnalyticsConfig{RecentWindow: time.Hour},
			Export:    ExportConfig{MaxDataPoints: 10},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, wantErr: "scheduler.interval"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Scheduler.Concurrency = 0 }, wantErr: "scheduler.concurrency"},
		{name: "telegram without token", mutate: func(c *Config) { c.Notify.Telegram.Enabled = true }, wantErr: "bot_token"},
		{name: "email without host", mutate: func(c *Config) {
			c.Notify.Email.Enabled = true
			c.Notify.Email.From = "a@b.c"
		}, wantErr: "smtp_host"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEmailSender(t *testing.T) {
	if got := (EmailConfig{Username: "u@x.io"}).Sender(); got != "u@x.io" {
		t.Fatalf("sender should fall back to username, got %q", got)
	}
	if got := (EmailConfig{Username: "u@x.io", From: "alerts@x.io"}).Sender(); got != "alerts@x.io" {
		t.Fatalf("from should win, got %q", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
