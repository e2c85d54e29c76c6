package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/pricing"
)

// BetService accepts stakes.
type BetService struct {
	bets     domain.BetStore
	tx       domain.TxRunner
	engine   *pricing.Engine
	minStake decimal.Decimal
	fx       effects
	now      func() time.Time
	logger   *slog.Logger
}

// NewBetService creates a BetService. A zero minStake accepts any positive
// amount.
func NewBetService(
	bets domain.BetStore,
	tx domain.TxRunner,
	engine *pricing.Engine,
	minStake decimal.Decimal,
	collab Collaborators,
	logger *slog.Logger,
) *BetService {
	logger = logger.With(slog.String("component", "bet_service"))
	return &BetService{
		bets:     bets,
		tx:       tx,
		engine:   engine,
		minStake: minStake,
		fx:       newEffects(collab, logger),
		now:      time.Now,
		logger:   logger,
	}
}

// PlaceBetParams describes a stake.
type PlaceBetParams struct {
	AccountID string          `json:"account_id"`
	MarketID  string          `json:"market_id"`
	Side      string          `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
}

// PlaceBet debits the account, locks in the current odds and adds the stake
// to the market's pools in one transaction. Odds are taken from the pools as
// they were before this stake. On any error nothing changes.
func (s *BetService) PlaceBet(ctx context.Context, p PlaceBetParams) (domain.Bet, error) {
	if s.minStake.IsPositive() && p.Amount.LessThan(s.minStake) {
		return domain.Bet{}, fmt.Errorf("%w: minimum stake is %s", domain.ErrInvalidAmount, s.minStake.StringFixed(2))
	}

	var (
		bet   domain.Bet
		after domain.Market
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now().UTC()

		m, err := tx.LockMarket(ctx, p.MarketID)
		if err != nil {
			return err
		}
		if !m.AcceptsBets(now) {
			return fmt.Errorf("%w: market %s is %s and ends at %s",
				domain.ErrInvalidMarketState, m.ID, m.Status, m.EndsAt.Format(time.RFC3339))
		}

		quote, err := s.engine.QuoteBet(m, p.Side, p.Amount)
		if err != nil {
			return err
		}

		balance, err := tx.Debit(ctx, p.AccountID, p.Amount)
		if err != nil {
			return err
		}
		if err := tx.AddStake(ctx, m.ID, p.Side, p.Amount); err != nil {
			return err
		}

		bet = domain.Bet{
			ID:              uuid.NewString(),
			MarketID:        m.ID,
			AccountID:       p.AccountID,
			Side:            p.Side,
			Amount:          p.Amount,
			OddsAtEntry:     quote.OddsAtEntry,
			PotentialPayout: quote.PotentialPayout,
			Status:          domain.BetStatusActive,
			Payout:          decimal.Zero,
			PlacedAt:        now,
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    p.AccountID,
			Kind:         domain.LedgerBet,
			Amount:       p.Amount.Neg(),
			BalanceAfter: balance,
			MarketID:     m.ID,
			BetID:        bet.ID,
			Description:  fmt.Sprintf("stake on %s @ %s", p.Side, quote.OddsAtEntry.String()),
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		m.Pools[p.Side] = m.Pool(p.Side).Add(p.Amount)
		m.TotalPool = m.TotalPool.Add(p.Amount)
		after = m
		return nil
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: %w", err)
	}

	snap := s.engine.Snapshot(after, s.now())
	s.fx.storeOdds(ctx, snap)
	s.fx.publish(ctx, domain.OddsChannel(after.ID), Event{Type: "odds", MarketID: after.ID, Data: snap})
	s.fx.auditLog(ctx, "bet_placed", map[string]any{
		"bet_id":        bet.ID,
		"market_id":     bet.MarketID,
		"account_id":    bet.AccountID,
		"side":          bet.Side,
		"amount":        bet.Amount.StringFixed(2),
		"odds_at_entry": bet.OddsAtEntry.String(),
	})
	s.logger.InfoContext(ctx, "bet_service: bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("market_id", bet.MarketID),
		slog.String("side", bet.Side),
		slog.String("amount", bet.Amount.StringFixed(2)),
		slog.String("odds", bet.OddsAtEntry.String()),
	)
	return bet, nil
}

// GetBet returns a bet by ID.
func (s *BetService) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	b, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get bet: %w", err)
	}
	return b, nil
}
