// Package config defines the top-level configuration for the poolbet service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POOLBET_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pricing  PricingConfig  `toml:"pricing"`
	Betting  BettingConfig  `toml:"betting"`
	Archive  ArchiveConfig  `toml:"archive"`
	Seed     SeedConfig     `toml:"seed"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig selects the store backend. Postgres is the production
// backend; sqlite runs a single-node deployment from one file.
type DatabaseConfig struct {
	Driver        string `toml:"driver"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	SQLitePath    string `toml:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters. An empty Addr runs the
// service without cache, bus, locks or rate limiting.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Namespace  string   `toml:"namespace"`
	OddsTTL    duration `toml:"odds_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Encryption     string `toml:"encryption"`
}

// PricingConfig holds the pool pricing parameters.
type PricingConfig struct {
	CommissionRate float64 `toml:"commission_rate"`
	MinOdds        float64 `toml:"min_odds"`
	DefaultOdds    float64 `toml:"default_odds"`
	CashoutFee     float64 `toml:"cashout_fee"`
}

// BettingConfig holds stake and balance movement limits.
type BettingConfig struct {
	// MinStake of 0 accepts any positive amount.
	MinStake    float64 `toml:"min_stake"`
	MinDeposit  float64 `toml:"min_deposit"`
	MinWithdraw float64 `toml:"min_withdraw"`
}

// ArchiveConfig controls the export of settled markets to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	Prefix        string   `toml:"prefix"`
}

// SeedConfig points the seed mode at a YAML file of markets.
type SeedConfig struct {
	File string `toml:"file"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of API requests allowed per client per
	// RateWindow. Zero disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:        "postgres",
			Host:          "localhost",
			Port:          5432,
			Database:      "poolbet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			SQLitePath:    "poolbet.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Namespace:  "poolbet:",
			OddsTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "poolbet-archive",
			ForcePathStyle: true,
		},
		Pricing: PricingConfig{
			CommissionRate: 0.35,
			MinOdds:        1.01,
			DefaultOdds:    2.0,
			CashoutFee:     0.10,
		},
		Betting: BettingConfig{
			MinStake:    0,
			MinDeposit:  10,
			MinWithdraw: 20,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			Prefix:        "archive",
		},
		Seed: SeedConfig{
			File: "markets.yaml",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_voided", "settlement_shortfall"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// ArchiveRetention returns the age after which settled markets are archived.
func (c *Config) ArchiveRetention() time.Duration {
	return time.Duration(c.Archive.RetentionDays) * 24 * time.Hour
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"seed":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, seed, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	switch c.Database.Driver {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, "database: sqlite_path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("database: unknown driver %q (valid: postgres, sqlite)", c.Database.Driver))
	}

	// Redis is optional.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Pricing
	if c.Pricing.CommissionRate < 0 || c.Pricing.CommissionRate >= 1 {
		errs = append(errs, fmt.Sprintf("pricing: commission_rate must be in [0, 1), got %g", c.Pricing.CommissionRate))
	}
	if c.Pricing.MinOdds < 1 {
		errs = append(errs, fmt.Sprintf("pricing: min_odds must be >= 1, got %g", c.Pricing.MinOdds))
	}
	if c.Pricing.DefaultOdds < c.Pricing.MinOdds {
		errs = append(errs, "pricing: default_odds must not be below min_odds")
	}
	if c.Pricing.CashoutFee < 0 || c.Pricing.CashoutFee >= 1 {
		errs = append(errs, fmt.Sprintf("pricing: cashout_fee must be in [0, 1), got %g", c.Pricing.CashoutFee))
	}

	// Betting
	if c.Betting.MinStake < 0 {
		errs = append(errs, "betting: min_stake must be >= 0")
	}
	if c.Betting.MinDeposit < 0 {
		errs = append(errs, "betting: min_deposit must be >= 0")
	}
	if c.Betting.MinWithdraw < 0 {
		errs = append(errs, "betting: min_withdraw must be >= 0")
	}

	// Archive needs a bucket whenever it can run.
	if mode == "archive" || (mode == "full" && c.Archive.Enabled) {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		switch c.S3.Encryption {
		case "", "AES256", "aws:kms":
		default:
			errs = append(errs, fmt.Sprintf("s3: unsupported encryption %q", c.S3.Encryption))
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
		if mode == "full" && c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if mode == "seed" && c.Seed.File == "" {
		errs = append(errs, "seed: file must not be empty")
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
