package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"price-watch/internal/logging"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the backing store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs the alert evaluation cadence. A non-zero
// AdvisoryLockKey on postgres lets only one replica run a scheduled cycle.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Concurrency     int           `mapstructure:"concurrency"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// QuotesConfig points at the comparison service producing live quotes.
type QuotesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig enables the redis quote cache used by request handlers.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// NotifyConfig defines delivery channels.
type NotifyConfig struct {
	Timeout        time.Duration  `mapstructure:"timeout"`
	CurrencySymbol string         `mapstructure:"currency_symbol"`
	Email          EmailConfig    `mapstructure:"email"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig 描述 SMTP 发信参数。
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"smtp_host"`
	Port     int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// HTTPConfig configures the request-serving API.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AnalyticsConfig tunes report presentation.
type AnalyticsConfig struct {
	RecentWindow   time.Duration `mapstructure:"recent_window"`
	CurrencySymbol string        `mapstructure:"currency_symbol"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "pricewatch.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("scheduler.advisory_lock_key", 0)

	v.SetDefault("quotes.base_url", "http://localhost:8000")
	v.SetDefault("quotes.request_timeout", "12s")
	v.SetDefault("quotes.user_agent", "")

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "10m")

	v.SetDefault("notify.timeout", "15s")
	v.SetDefault("notify.currency_symbol", "₹")
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.smtp_host", "smtp.gmail.com")
	v.SetDefault("notify.email.smtp_port", 587)
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"http://127.0.0.1:5500", "http://localhost:5500"})
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("analytics.recent_window", "168h")
	v.SetDefault("analytics.currency_symbol", "₹")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be greater than zero")
	}
	if c.Quotes.RequestTimeout <= 0 {
		return fmt.Errorf("quotes.request_timeout must be greater than zero")
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be greater than zero")
	}
	if c.Analytics.RecentWindow <= 0 {
		return fmt.Errorf("analytics.recent_window must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.Host == "" || c.Notify.Email.Port <= 0 {
			return fmt.Errorf("notify.email.smtp_host 与 smtp_port 必须配置")
		}
		if c.Notify.Email.From == "" && c.Notify.Email.Username == "" {
			return fmt.Errorf("notify.email.from 或 username 必须配置")
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Sender returns the From address used for outgoing mail.
func (e EmailConfig) Sender() string {
	if e.From != "" {
		return e.From
	}
	return e.Username
}
