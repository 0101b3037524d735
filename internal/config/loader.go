package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPREADBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file so a deployment can
// be configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, len(undec))
			for i, k := range undec {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPREADBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Helper credentials are configured in TOML only.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "SPREADBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.Market, "SPREADBOT_EXCHANGE_MARKET")
	setDuration(&cfg.Exchange.Timeout, "SPREADBOT_EXCHANGE_TIMEOUT")

	// ── Primary credential ──
	setStr(&cfg.Credentials.Primary.APIKey, "SPREADBOT_API_KEY")
	setStr(&cfg.Credentials.Primary.APISecret, "SPREADBOT_API_SECRET")
	setStr(&cfg.Credentials.Primary.EncryptedSecretPath, "SPREADBOT_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Credentials.Primary.SecretPassword, "SPREADBOT_SECRET_PASSWORD")

	// ── Trade ──
	setStr(&cfg.Trade.Amount, "SPREADBOT_TRADE_AMOUNT")
	setStr(&cfg.Trade.AmountAsset, "SPREADBOT_TRADE_AMOUNT_ASSET")
	setBool(&cfg.Trade.InitialBuy, "SPREADBOT_TRADE_INITIAL_BUY")
	setStr(&cfg.Trade.MinProfitPercent, "SPREADBOT_TRADE_MIN_PROFIT_PERCENT")
	setBool(&cfg.Trade.Simulate, "SPREADBOT_TRADE_SIMULATE")
	setBool(&cfg.Trade.FixMissedSecondLeg, "SPREADBOT_TRADE_FIX_MISSED_SECOND_LEG")

	// ── Schedule ──
	setDuration(&cfg.Schedule.Interval, "SPREADBOT_SCHEDULE_INTERVAL")
	setBool(&cfg.Schedule.BurstEnabled, "SPREADBOT_SCHEDULE_BURST_ENABLED")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SPREADBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPREADBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPREADBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPREADBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SPREADBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "SPREADBOT_REDIS_KEY_PREFIX")
	setBool(&cfg.Redis.QuotaGuard, "SPREADBOT_REDIS_QUOTA_GUARD")
	setBool(&cfg.Redis.InstanceLock, "SPREADBOT_REDIS_INSTANCE_LOCK")
	setDuration(&cfg.Redis.LockTTL, "SPREADBOT_REDIS_LOCK_TTL")
	setStr(&cfg.Redis.CycleStream, "SPREADBOT_REDIS_CYCLE_STREAM")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SPREADBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SPREADBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SPREADBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPREADBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPREADBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPREADBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPREADBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPREADBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "SPREADBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SPREADBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPREADBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPREADBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SPREADBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SPREADBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPREADBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SPREADBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SPREADBOT_S3_FORCE_PATH_STYLE")

	// ── Journal ──
	setStr(&cfg.Journal.Path, "SPREADBOT_JOURNAL_PATH")
	setInt(&cfg.Journal.RingSize, "SPREADBOT_JOURNAL_RING_SIZE")
	setStr(&cfg.Journal.ArchiveCron, "SPREADBOT_JOURNAL_ARCHIVE_CRON")
	setBool(&cfg.Journal.KeepLocal, "SPREADBOT_JOURNAL_KEEP_LOCAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SPREADBOT_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SPREADBOT_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "SPREADBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SPREADBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SPREADBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPREADBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPREADBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPREADBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setBool(&cfg.Notify.Bell, "SPREADBOT_NOTIFY_BELL")
	setStringSlice(&cfg.Notify.Events, "SPREADBOT_NOTIFY_EVENTS")
	setStr(&cfg.Notify.SummaryCron, "SPREADBOT_NOTIFY_SUMMARY_CRON")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "SPREADBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
