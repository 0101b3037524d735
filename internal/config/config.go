// Package config defines the top-level configuration for spreadbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/notify"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPREADBOT_* environment variables.
type Config struct {
	Exchange    ExchangeConfig    `toml:"exchange"`
	Credentials CredentialsConfig `toml:"credentials"`
	Trade       TradeConfig       `toml:"trade"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Redis       RedisConfig       `toml:"redis"`
	Postgres    PostgresConfig    `toml:"postgres"`
	S3          S3Config          `toml:"s3"`
	Journal     JournalConfig     `toml:"journal"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	LogLevel    string            `toml:"log_level"`
}

// ExchangeConfig points at the spot market's REST API.
type ExchangeConfig struct {
	BaseURL string   `toml:"base_url"`
	Market  string   `toml:"market"` // "BASE-QUOTE", e.g. "BTC-EUR"
	Timeout duration `toml:"timeout"`
}

// Symbols splits Market into its base and quote asset.
func (e ExchangeConfig) Symbols() (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(e.Market, "-")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

// CredentialConfig is one API key pair. The secret may be given inline or
// as an encrypted file.
type CredentialConfig struct {
	Name                string `toml:"name"`
	APIKey              string `toml:"api_key"`
	APISecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
}

// CredentialsConfig holds the primary (execution) credential and any
// polling-only helpers.
type CredentialsConfig struct {
	Primary CredentialConfig   `toml:"primary"`
	Helpers []CredentialConfig `toml:"helpers"`
}

// TradeConfig holds the arbitrage parameters.
type TradeConfig struct {
	Amount             string `toml:"amount"` // decimal string, parsed exactly
	AmountAsset        string `toml:"amount_asset"`
	InitialBuy         bool   `toml:"initial_buy"`
	MinProfitPercent   string `toml:"min_profit_percent"`
	Simulate           bool   `toml:"simulate"`
	FixMissedSecondLeg bool   `toml:"fix_missed_second_leg"`
}

// AmountDecimal parses Amount.
func (t TradeConfig) AmountDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(t.Amount))
}

// MinProfitDecimal parses MinProfitPercent.
func (t TradeConfig) MinProfitDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(t.MinProfitPercent))
}

// ScheduleConfig controls the polling cadence. A zero interval adopts the
// calibrated minimum.
type ScheduleConfig struct {
	Interval     duration `toml:"interval"`
	BurstEnabled bool     `toml:"burst_enabled"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: an empty
// Addr disables the quota guard, the instance lock and the cycle bus.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	QuotaGuard   bool     `toml:"quota_guard"`
	InstanceLock bool     `toml:"instance_lock"`
	LockTTL      duration `toml:"lock_ttl"`
	CycleChannel string   `toml:"cycle_channel"`
	CycleStream  string   `toml:"cycle_stream"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters for the cycle
// journal table. Disabled unless Enabled is set.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for journal
// archives. An empty Bucket disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int64  `toml:"part_size_mb"`
}

// JournalConfig controls the local cycle journal.
type JournalConfig struct {
	Path        string `toml:"path"` // empty disables the JSONL file
	RingSize    int    `toml:"ring_size"`
	ArchiveCron string `toml:"archive_cron"` // six-field cron spec, seconds first
	KeepLocal   bool   `toml:"keep_local"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Addr            string   `toml:"addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
	StatusEvery     duration `toml:"status_every"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Bell              bool     `toml:"bell"`
	Events            []string `toml:"events"`
	SummaryCron       string   `toml:"summary_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Timeout: duration{10 * time.Second},
		},
		Credentials: CredentialsConfig{
			Primary: CredentialConfig{Name: "primary"},
		},
		Trade: TradeConfig{
			InitialBuy:       true,
			MinProfitPercent: "0",
			Simulate:         false,
		},
		Schedule: ScheduleConfig{
			BurstEnabled: true,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MaxRetries:   3,
			KeyPrefix:    "spreadbot",
			QuotaGuard:   true,
			InstanceLock: true,
			LockTTL:      duration{30 * time.Second},
			CycleChannel: "cycles",
			StreamMaxLen: 10_000,
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "spreadbot",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   4,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
			PartSizeMB:     5,
		},
		Journal: JournalConfig{
			Path:        "data/cycles.jsonl",
			RingSize:    500,
			ArchiveCron: "0 0 * * * *",
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            "127.0.0.1:8000",
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitWindow: duration{time.Second},
			StatusEvery:     duration{5 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			DiscordUsername: "spreadbot",
			Events: []string{
				notify.EventTradeExecuted,
				notify.EventPartialFailure,
				notify.EventManualIntervention,
				notify.EventFatal,
				notify.EventSummary,
			},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	notify.EventTradeExecuted:      true,
	notify.EventPartialFailure:     true,
	notify.EventManualIntervention: true,
	notify.EventFatal:              true,
	notify.EventSummary:            true,
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	base, quote, ok := c.Exchange.Symbols()
	if !ok {
		errs = append(errs, fmt.Sprintf("exchange: market must look like BASE-QUOTE, got %q", c.Exchange.Market))
	}
	if c.Exchange.Timeout.Duration <= 0 {
		errs = append(errs, "exchange: timeout must be > 0")
	}

	// Credentials
	// Names key the per-credential quota guard and each key carries its own
	// rate limit, so both must be unique after defaults are applied.
	names := map[string]string{}
	keys := map[string]string{}
	creds := append([]CredentialConfig{c.Credentials.Primary}, c.Credentials.Helpers...)
	for i, cr := range creds {
		label := "credentials.primary"
		if i > 0 {
			label = fmt.Sprintf("credentials.helpers[%d]", i-1)
		}
		if cr.APIKey == "" {
			errs = append(errs, label+": api_key must not be empty")
		}
		if cr.APISecret == "" && cr.EncryptedSecretPath == "" {
			errs = append(errs, label+": either api_secret or encrypted_secret_path must be set")
		}
		if cr.EncryptedSecretPath != "" && cr.SecretPassword == "" && cr.APISecret == "" {
			errs = append(errs, label+": secret_password is required when encrypted_secret_path is set")
		}
		name := credentialName(cr, i)
		if prev, dup := names[name]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate credential name %q (also %s)", label, name, prev))
		} else {
			names[name] = label
		}
		if cr.APIKey != "" {
			if prev, dup := keys[cr.APIKey]; dup {
				errs = append(errs, fmt.Sprintf("%s: duplicate api_key (also %s)", label, prev))
			} else {
				keys[cr.APIKey] = label
			}
		}
	}

	// Trade
	if amount, err := c.Trade.AmountDecimal(); err != nil {
		errs = append(errs, fmt.Sprintf("trade: amount %q is not a decimal", c.Trade.Amount))
	} else if !amount.IsPositive() {
		errs = append(errs, "trade: amount must be > 0")
	}
	if ok && c.Trade.AmountAsset != base && c.Trade.AmountAsset != quote {
		errs = append(errs, fmt.Sprintf("trade: amount_asset must be %s or %s, got %q", base, quote, c.Trade.AmountAsset))
	}
	if _, err := c.Trade.MinProfitDecimal(); err != nil {
		errs = append(errs, fmt.Sprintf("trade: min_profit_percent %q is not a decimal", c.Trade.MinProfitPercent))
	}

	// Schedule
	if c.Schedule.Interval.Duration < 0 {
		errs = append(errs, "schedule: interval must not be negative")
	}

	// Redis
	if c.Redis.Addr != "" {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.InstanceLock && c.Redis.LockTTL.Duration < time.Second {
			errs = append(errs, "redis: lock_ttl must be >= 1s")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// S3
	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Journal.Path == "" {
			errs = append(errs, "s3: archiving needs journal.path")
		}
		if c.S3.PartSizeMB < 5 {
			errs = append(errs, "s3: part_size_mb must be >= 5")
		}
	}

	// Journal
	if c.Journal.RingSize < 1 {
		errs = append(errs, "journal: ring_size must be >= 1")
	}
	if c.Journal.ArchiveCron != "" {
		if _, err := cronParser.Parse(c.Journal.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("journal: archive_cron %q: %v", c.Journal.ArchiveCron, err))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			errs = append(errs, "server: addr must not be empty")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}
	if c.Notify.SummaryCron != "" {
		if _, err := cronParser.Parse(c.Notify.SummaryCron); err != nil {
			errs = append(errs, fmt.Sprintf("notify: summary_cron %q: %v", c.Notify.SummaryCron, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// QuoteCurrency reports whether the trade amount is denominated in the
// market's quote asset.
func (c *Config) QuoteCurrency() bool {
	_, quote, ok := c.Exchange.Symbols()
	return ok && c.Trade.AmountAsset == quote
}
