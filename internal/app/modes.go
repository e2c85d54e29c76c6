package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/seed"
	"github.com/alanyoungcy/poolbet/internal/server"
	"github.com/alanyoungcy/poolbet/internal/server/handler"
	"github.com/alanyoungcy/poolbet/internal/server/ws"
	"github.com/alanyoungcy/poolbet/internal/service"
)

// services holds the business services shared by the modes.
type services struct {
	markets    *service.MarketService
	bets       *service.BetService
	settlement *service.SettlementService
	cashout    *service.CashoutService
	accounts   *service.AccountService
}

func (a *App) buildServices(deps *Dependencies) services {
	collab := service.Collaborators{
		Cache:    deps.OddsCache,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Notifier: deps.Notifier,
	}
	limits := service.Limits{
		MinDeposit:  decimal.NewFromFloat(a.cfg.Betting.MinDeposit),
		MinWithdraw: decimal.NewFromFloat(a.cfg.Betting.MinWithdraw),
	}
	minStake := decimal.NewFromFloat(a.cfg.Betting.MinStake)

	return services{
		markets:    service.NewMarketService(deps.MarketStore, deps.BetStore, deps.TxRunner, deps.Engine, collab, a.logger),
		bets:       service.NewBetService(deps.BetStore, deps.TxRunner, deps.Engine, minStake, collab, a.logger),
		settlement: service.NewSettlementService(deps.TxRunner, deps.LockManager, deps.Engine, collab, a.logger),
		cashout:    service.NewCashoutService(deps.MarketStore, deps.BetStore, deps.TxRunner, deps.Engine, collab, a.logger),
		accounts: service.NewAccountService(
			deps.AccountStore, deps.LedgerStore, deps.BetStore, deps.TxRunner, limits, collab, a.logger,
		),
	}
}

// ServerMode serves the HTTP API and, when the signal bus is wired, the live
// websocket feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// ArchiveMode exports every market settled before the retention cutoff and
// exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	_, err := a.runArchive(ctx, deps)
	return err
}

// SeedMode opens the markets listed in the seed file and exits.
func (a *App) SeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting seed mode", slog.String("file", a.cfg.Seed.File))

	f, err := seed.LoadFile(a.cfg.Seed.File)
	if err != nil {
		return fmt.Errorf("app: seed: %w", err)
	}
	svc := a.buildServices(deps)
	created, err := seed.NewSeeder(svc.markets, a.logger).Apply(ctx, f)
	if err != nil {
		return fmt.Errorf("app: seed: %w", err)
	}
	a.logger.InfoContext(ctx, "app: seed complete",
		slog.Int("created", created),
		slog.Int("listed", len(f.Markets)),
	)
	return nil
}

// FullMode runs the server and, when archiving is enabled, the periodic
// archiver in the same process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps))

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	} else {
		a.logger.InfoContext(ctx, "app: archiving disabled")
	}

	return g.Wait()
}

func (a *App) runArchive(ctx context.Context, deps *Dependencies) (int64, error) {
	if deps.Archiver == nil {
		return 0, fmt.Errorf("app: archive: object storage is not configured")
	}
	cutoff := time.Now().UTC().Add(-a.cfg.ArchiveRetention())
	n, err := deps.Archiver.ArchiveSettledMarkets(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("app: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "app: archive run complete",
		slog.Int64("markets", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

// archiveLoop runs the archiver immediately and then once per interval.
// Failures are reported but never stop the loop.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.runArchive(ctx, deps); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "app: archive run failed", slog.String("error", err.Error()))
			if nerr := deps.Notifier.NotifyAll(ctx, domain.EventArchiveFailed, "Archive failed", err.Error()); nerr != nil {
				a.logger.WarnContext(ctx, "app: archive failure notification", slog.String("error", nerr.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// startHTTPServer registers the API on the errgroup along with a goroutine
// that shuts it down once ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc services) {
	startedAt := time.Now().UTC()

	checks := map[string]handler.HealthCheck{"database": deps.DBPing}
	if deps.RedisPing != nil {
		checks["redis"] = deps.RedisPing
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, deps.Engine.Config(), startedAt),
		Markets:  handler.NewMarketHandler(svc.markets, svc.settlement, a.logger),
		Bets:     handler.NewBetHandler(svc.bets, svc.cashout, a.logger),
		Accounts: handler.NewAccountHandler(svc.accounts, a.logger),
		Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.cfg.Archive.Prefix, a.logger)
	}

	// The live feed and the settlement stream need the Redis signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		handlers.Settlements = handler.NewSettlementFeedHandler(deps.SignalBus, a.logger)
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: startedAt,
			Quotes:    svc.markets,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "app: HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
