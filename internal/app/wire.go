package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/poolbet/internal/blob/s3"
	"github.com/alanyoungcy/poolbet/internal/cache/redis"
	"github.com/alanyoungcy/poolbet/internal/config"
	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/notify"
	"github.com/alanyoungcy/poolbet/internal/pricing"
	"github.com/alanyoungcy/poolbet/internal/store/postgres"
	"github.com/alanyoungcy/poolbet/internal/store/sqlite"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Redis, blob and notification fields stay nil when the
// deployment does not configure them.
type Dependencies struct {
	// Stores
	MarketStore  domain.MarketStore
	BetStore     domain.BetStore
	AccountStore domain.AccountStore
	LedgerStore  domain.LedgerStore
	AuditStore   domain.AuditStore
	TxRunner     domain.TxRunner
	DBPing       func(ctx context.Context) error

	// Caches
	OddsCache   domain.OddsCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RedisPing   func(ctx context.Context) error

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	Engine *pricing.Engine
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// PricingConfig converts the configured pricing parameters.
func PricingConfig(cfg *config.Config) pricing.Config {
	return pricing.Config{
		CommissionRate: decimal.NewFromFloat(cfg.Pricing.CommissionRate),
		MinOdds:        decimal.NewFromFloat(cfg.Pricing.MinOdds),
		DefaultOdds:    decimal.NewFromFloat(cfg.Pricing.DefaultOdds),
		CashoutFee:     decimal.NewFromFloat(cfg.Pricing.CashoutFee),
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	engine, err := pricing.New(PricingConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("wire: pricing: %w", err)
	}
	deps.Engine = engine

	// --- Database ---
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		deps.MarketStore = sqlite.NewMarketStore(db)
		deps.BetStore = sqlite.NewBetStore(db)
		deps.AccountStore = sqlite.NewAccountStore(db)
		deps.LedgerStore = sqlite.NewLedgerStore(db)
		deps.AuditStore = sqlite.NewAuditStore(db)
		deps.TxRunner = sqlite.NewTxRunner(db)
		deps.DBPing = db.Ping
		logger.InfoContext(ctx, "wire: sqlite store ready", slog.String("path", cfg.Database.SQLitePath))

	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.BetStore = postgres.NewBetStore(pool)
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.TxRunner = postgres.NewTxRunner(pool)
		deps.DBPing = pgClient.Ping
	}

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.OddsCache = redis.NewOddsCache(redisClient, cfg.Redis.OddsTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RedisPing = redisClient.Ping
	} else {
		logger.WarnContext(ctx, "wire: redis.addr is empty; running without odds cache, settlement locks, live feed and rate limiting")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(notify.TelegramConfig{
			Token:  cfg.Notify.TelegramToken,
			ChatID: cfg.Notify.TelegramChatID,
			APIURL: cfg.Notify.TelegramAPIURL,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: telegram: %w", err)
		}
		senders = append(senders, tg)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Encryption:     cfg.S3.Encryption,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: archive bucket not reachable yet",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverDeps{
			Writer:   writer,
			Reader:   reader,
			Markets:  deps.MarketStore,
			Bets:     deps.BetStore,
			Audit:    deps.AuditStore,
			Notifier: deps.Notifier,
		}, cfg.Archive.Prefix, logger.With(slog.String("component", "archiver")))
	}

	return deps, cleanup, nil
}
