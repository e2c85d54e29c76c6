package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POOLBET_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POOLBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.Driver, "POOLBET_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "POOLBET_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "POOLBET_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POOLBET_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POOLBET_DATABASE_NAME")
	setStr(&cfg.Database.User, "POOLBET_DATABASE_USER")
	setStr(&cfg.Database.Password, "POOLBET_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POOLBET_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "POOLBET_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POOLBET_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POOLBET_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Database.SQLitePath, "POOLBET_DATABASE_SQLITE_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POOLBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POOLBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POOLBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POOLBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POOLBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POOLBET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "POOLBET_REDIS_NAMESPACE")
	setDuration(&cfg.Redis.OddsTTL, "POOLBET_REDIS_ODDS_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POOLBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POOLBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "POOLBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POOLBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POOLBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POOLBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POOLBET_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Encryption, "POOLBET_S3_ENCRYPTION")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.CommissionRate, "POOLBET_PRICING_COMMISSION_RATE")
	setFloat64(&cfg.Pricing.MinOdds, "POOLBET_PRICING_MIN_ODDS")
	setFloat64(&cfg.Pricing.DefaultOdds, "POOLBET_PRICING_DEFAULT_ODDS")
	setFloat64(&cfg.Pricing.CashoutFee, "POOLBET_PRICING_CASHOUT_FEE")

	// ── Betting ──
	setFloat64(&cfg.Betting.MinStake, "POOLBET_BETTING_MIN_STAKE")
	setFloat64(&cfg.Betting.MinDeposit, "POOLBET_BETTING_MIN_DEPOSIT")
	setFloat64(&cfg.Betting.MinWithdraw, "POOLBET_BETTING_MIN_WITHDRAW")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POOLBET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POOLBET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "POOLBET_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "POOLBET_ARCHIVE_PREFIX")

	// ── Seed ──
	setStr(&cfg.Seed.File, "POOLBET_SEED_FILE")

	// ── Server ──
	setInt(&cfg.Server.Port, "POOLBET_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POOLBET_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLBET_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "POOLBET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POOLBET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POOLBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POOLBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPIURL, "POOLBET_NOTIFY_TELEGRAM_API_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "POOLBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POOLBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POOLBET_MODE")
	setStr(&cfg.LogLevel, "POOLBET_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
