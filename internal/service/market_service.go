package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/pricing"
)

// MarketService creates markets and serves their odds.
type MarketService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	tx      domain.TxRunner
	engine  *pricing.Engine
	fx      effects
	quotes  singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	bets domain.BetStore,
	tx domain.TxRunner,
	engine *pricing.Engine,
	collab Collaborators,
	logger *slog.Logger,
) *MarketService {
	logger = logger.With(slog.String("component", "market_service"))
	return &MarketService{
		markets: markets,
		bets:    bets,
		tx:      tx,
		engine:  engine,
		fx:      newEffects(collab, logger),
		now:     time.Now,
		logger:  logger,
	}
}

// CreateMarketParams describes a new market.
type CreateMarketParams struct {
	Question string    `json:"question"`
	Outcomes []string  `json:"outcomes"`
	EndsAt   time.Time `json:"ends_at"`
}

// CreateMarket validates and stores a new OPEN market with empty pools.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	m, err := domain.NewMarket(uuid.NewString(), p.Question, p.Outcomes, p.EndsAt, s.now())
	if err != nil {
		return domain.Market{}, err
	}
	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	s.fx.auditLog(ctx, "market_created", map[string]any{
		"market_id": m.ID,
		"question":  m.Question,
		"outcomes":  m.Outcomes,
		"ends_at":   m.EndsAt,
	})
	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.Int("outcomes", len(m.Outcomes)),
	)
	return m, nil
}

// GetMarket returns a market by ID.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market: %w", err)
	}
	return m, nil
}

// ListMarkets lists markets, optionally filtered by status.
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// ListBets lists the bets placed on a market.
func (s *MarketService) ListBets(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return nil, fmt.Errorf("market_service: list bets: %w", err)
	}
	bets, err := s.bets.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list bets: %w", err)
	}
	return bets, nil
}

// Quote returns the current odds table of a market. Snapshots are served
// from the odds cache when present; concurrent misses for the same market
// share one database read.
func (s *MarketService) Quote(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	if s.fx.cache != nil {
		snap, err := s.fx.cache.Get(ctx, marketID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: odds cache read failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	v, err, _ := s.quotes.Do(marketID, func() (any, error) {
		m, err := s.markets.GetByID(ctx, marketID)
		if err != nil {
			return nil, err
		}
		snap := s.engine.Snapshot(m, s.now())
		s.fx.storeOdds(ctx, snap)
		return snap, nil
	})
	if err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("market_service: quote: %w", err)
	}
	return v.(domain.OddsSnapshot), nil
}

// Reopen moves a settled market back to OPEN. Only a market that never took
// a bet can be reopened.
func (s *MarketService) Reopen(ctx context.Context, marketID string) (domain.Market, error) {
	var reopened domain.Market
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status == domain.MarketStatusOpen {
			return fmt.Errorf("%w: market %s is already open", domain.ErrInvalidMarketState, m.ID)
		}
		n, err := tx.CountBets(ctx, m.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: market %s has %d bets and cannot be reopened", domain.ErrInvalidMarketState, m.ID, n)
		}

		now := s.now().UTC()
		if err := tx.SetMarketStatus(ctx, m.ID, domain.MarketStatusOpen, "", now); err != nil {
			return err
		}
		m.Status = domain.MarketStatusOpen
		m.ResolutionResult = ""
		m.SettledAt = nil
		m.UpdatedAt = now
		reopened = m
		return nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: reopen %s: %w", marketID, err)
	}

	s.fx.invalidateOdds(ctx, marketID)
	s.fx.publish(ctx, domain.OddsChannel(marketID), Event{
		Type:     "market_reopened",
		MarketID: marketID,
		Data:     s.engine.Snapshot(reopened, s.now()),
	})
	s.fx.auditLog(ctx, "market_reopened", map[string]any{"market_id": marketID})
	s.logger.InfoContext(ctx, "market_service: market reopened", slog.String("market_id", marketID))
	return reopened, nil
}
