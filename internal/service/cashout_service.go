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

// CashoutService values and executes early exits from active bets.
type CashoutService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	tx      domain.TxRunner
	engine  *pricing.Engine
	fx      effects
	now     func() time.Time
	logger  *slog.Logger
}

// NewCashoutService creates a CashoutService.
func NewCashoutService(
	markets domain.MarketStore,
	bets domain.BetStore,
	tx domain.TxRunner,
	engine *pricing.Engine,
	collab Collaborators,
	logger *slog.Logger,
) *CashoutService {
	logger = logger.With(slog.String("component", "cashout_service"))
	return &CashoutService{
		markets: markets,
		bets:    bets,
		tx:      tx,
		engine:  engine,
		fx:      newEffects(collab, logger),
		now:     time.Now,
		logger:  logger,
	}
}

// CashoutQuote is the current early-exit offer for a bet.
type CashoutQuote struct {
	BetID           string          `json:"bet_id"`
	Value           decimal.Decimal `json:"value"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Fee             decimal.Decimal `json:"fee_rate"`
	QuotedAt        time.Time       `json:"quoted_at"`
}

// CashoutResult reports an executed cash-out.
type CashoutResult struct {
	Bet     domain.Bet      `json:"bet"`
	Value   decimal.Decimal `json:"value"`
	Balance decimal.Decimal `json:"balance"`
}

// Quote values a bet without changing anything.
func (s *CashoutService) Quote(ctx context.Context, betID string) (CashoutQuote, error) {
	b, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return CashoutQuote{}, fmt.Errorf("cashout_service: quote: %w", err)
	}
	m, err := s.markets.GetByID(ctx, b.MarketID)
	if err != nil {
		return CashoutQuote{}, fmt.Errorf("cashout_service: quote: %w", err)
	}
	value, err := s.engine.CashoutValue(m, b)
	if err != nil {
		return CashoutQuote{}, fmt.Errorf("cashout_service: quote: %w", err)
	}
	return CashoutQuote{
		BetID:           b.ID,
		Value:           value,
		PotentialPayout: b.PotentialPayout,
		Fee:             s.engine.Config().CashoutFee,
		QuotedAt:        s.now().UTC(),
	}, nil
}

// CashOut closes an active bet owned by accountID at its current value.
// The stake stays in the pool: the house takes over the position, so the
// odds of the market do not move.
func (s *CashoutService) CashOut(ctx context.Context, betID, accountID string) (CashoutResult, error) {
	// The market ID is needed first so the market row is always locked
	// before the bet row, the same order settlement uses.
	existing, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return CashoutResult{}, fmt.Errorf("cashout_service: cash out: %w", err)
	}
	if existing.AccountID != accountID {
		return CashoutResult{}, fmt.Errorf("cashout_service: cash out %s: %w", betID, domain.ErrForbidden)
	}

	var result CashoutResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now().UTC()

		m, err := tx.LockMarket(ctx, existing.MarketID)
		if err != nil {
			return err
		}
		b, err := tx.LockBet(ctx, betID)
		if err != nil {
			return err
		}

		value, err := s.engine.CashoutValue(m, b)
		if err != nil {
			return err
		}
		if err := tx.SettleBet(ctx, b.ID, domain.BetStatusCashedOut, value, now); err != nil {
			return err
		}
		balance, err := tx.Credit(ctx, b.AccountID, value)
		if err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    b.AccountID,
			Kind:         domain.LedgerCashout,
			Amount:       value,
			BalanceAfter: balance,
			MarketID:     m.ID,
			BetID:        b.ID,
			Description:  "cash-out",
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		b.Status = domain.BetStatusCashedOut
		b.Payout = value
		b.SettledAt = &now
		result = CashoutResult{Bet: b, Value: value, Balance: balance}
		return nil
	})
	if err != nil {
		return CashoutResult{}, fmt.Errorf("cashout_service: cash out %s: %w", betID, err)
	}

	s.fx.auditLog(ctx, "bet_cashed_out", map[string]any{
		"bet_id":     result.Bet.ID,
		"market_id":  result.Bet.MarketID,
		"account_id": result.Bet.AccountID,
		"value":      result.Value.StringFixed(2),
		"potential":  result.Bet.PotentialPayout.StringFixed(2),
	})
	s.logger.InfoContext(ctx, "cashout_service: bet cashed out",
		slog.String("bet_id", result.Bet.ID),
		slog.String("market_id", result.Bet.MarketID),
		slog.String("value", result.Value.StringFixed(2)),
	)
	return result, nil
}
