package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/pricing"
)

// settlementLockTTL bounds how long a crashed settlement can block the
// market.
const settlementLockTTL = 2 * time.Minute

// SettlementService resolves and voids markets.
type SettlementService struct {
	tx     domain.TxRunner
	locks  domain.LockManager
	engine *pricing.Engine
	fx     effects
	now    func() time.Time
	logger *slog.Logger
}

// NewSettlementService creates a SettlementService. locks may be nil on a
// single-node deployment, where the database transaction alone serializes
// settlement.
func NewSettlementService(
	tx domain.TxRunner,
	locks domain.LockManager,
	engine *pricing.Engine,
	collab Collaborators,
	logger *slog.Logger,
) *SettlementService {
	logger = logger.With(slog.String("component", "settlement_service"))
	return &SettlementService{
		tx:     tx,
		locks:  locks,
		engine: engine,
		fx:     newEffects(collab, logger),
		now:    time.Now,
		logger: logger,
	}
}

// Resolve settles a market on winner: every active winning bet is paid,
// every losing bet closes with nothing, and the market becomes RESOLVED.
// It all commits together or not at all.
func (s *SettlementService) Resolve(ctx context.Context, marketID, winner string) (pricing.Settlement, error) {
	settlement, err := s.settle(ctx, marketID, func(m domain.Market, bets []domain.Bet) (pricing.Settlement, domain.MarketStatus, string, error) {
		plan, err := s.engine.PlanResolution(m, winner, bets)
		return plan, domain.MarketStatusResolved, winner, err
	})
	if err != nil {
		return pricing.Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", marketID, err)
	}

	s.fx.publish(ctx, domain.ChannelSettlement, Event{Type: domain.EventMarketResolved, MarketID: marketID, Data: settlement})
	s.fx.auditLog(ctx, domain.EventMarketResolved, map[string]any{
		"market_id":      marketID,
		"winner":         winner,
		"total_pool":     settlement.TotalPool.StringFixed(2),
		"distributable":  settlement.Distributable.StringFixed(2),
		"total_paid":     settlement.TotalPaid.StringFixed(2),
		"total_refunded": settlement.TotalRefunded.StringFixed(2),
		"winners":        settlement.Winners(),
		"shortfall":      settlement.Shortfall.StringFixed(2),
	})
	s.fx.notify(ctx, domain.EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("Market %s resolved to %s: %d winner(s), R$%s paid of R$%s pool.",
			marketID, winner, settlement.Winners(),
			settlement.TotalPaid.StringFixed(2), settlement.TotalPool.StringFixed(2)),
	)
	if settlement.Shortfall.IsPositive() {
		s.fx.notify(ctx, domain.EventSettlementGap,
			"Settlement shortfall",
			fmt.Sprintf("Market %s: odds floor paid R$%s above the distributable prize.",
				marketID, settlement.Shortfall.StringFixed(2)),
		)
	}
	s.logger.InfoContext(ctx, "settlement_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("winner", winner),
		slog.Int("payouts", len(settlement.Payouts)),
		slog.String("total_paid", settlement.TotalPaid.StringFixed(2)),
		slog.String("shortfall", settlement.Shortfall.StringFixed(2)),
	)
	return settlement, nil
}

// Void cancels a market and refunds every active bet its exact stake.
func (s *SettlementService) Void(ctx context.Context, marketID string) (pricing.Settlement, error) {
	settlement, err := s.settle(ctx, marketID, func(m domain.Market, bets []domain.Bet) (pricing.Settlement, domain.MarketStatus, string, error) {
		plan, err := s.engine.PlanVoid(m, bets)
		return plan, domain.MarketStatusCanceled, "", err
	})
	if err != nil {
		return pricing.Settlement{}, fmt.Errorf("settlement_service: void %s: %w", marketID, err)
	}

	s.fx.publish(ctx, domain.ChannelSettlement, Event{Type: domain.EventMarketVoided, MarketID: marketID, Data: settlement})
	s.fx.auditLog(ctx, domain.EventMarketVoided, map[string]any{
		"market_id":      marketID,
		"total_pool":     settlement.TotalPool.StringFixed(2),
		"total_refunded": settlement.TotalRefunded.StringFixed(2),
		"refunds":        len(settlement.Payouts),
	})
	s.fx.notify(ctx, domain.EventMarketVoided,
		"Market voided",
		fmt.Sprintf("Market %s voided: R$%s refunded to %d bet(s).",
			marketID, settlement.TotalRefunded.StringFixed(2), len(settlement.Payouts)),
	)
	s.logger.InfoContext(ctx, "settlement_service: market voided",
		slog.String("market_id", marketID),
		slog.Int("refunds", len(settlement.Payouts)),
		slog.String("total_refunded", settlement.TotalRefunded.StringFixed(2)),
	)
	return settlement, nil
}

type planFunc func(m domain.Market, bets []domain.Bet) (pricing.Settlement, domain.MarketStatus, string, error)

// settle runs plan against the locked market and its active bets, applies
// every payout and moves the market to its terminal status.
func (s *SettlementService) settle(ctx context.Context, marketID string, plan planFunc) (pricing.Settlement, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "settlement:"+marketID, settlementLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return pricing.Settlement{}, fmt.Errorf("%w: settlement of %s already in progress", domain.ErrConcurrencyConflict, marketID)
			}
			return pricing.Settlement{}, err
		}
		defer unlock()
	}

	var settlement pricing.Settlement
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now().UTC()

		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return err
		}
		bets, err := tx.LockActiveBets(ctx, m.ID)
		if err != nil {
			return err
		}

		result, status, resolution, err := plan(m, bets)
		if err != nil {
			return err
		}

		for _, p := range result.Payouts {
			if err := tx.SettleBet(ctx, p.BetID, p.Status, p.Amount, now); err != nil {
				return err
			}
			if !p.Amount.IsPositive() {
				continue
			}
			balance, err := tx.Credit(ctx, p.AccountID, p.Amount)
			if err != nil {
				return err
			}
			kind := domain.LedgerWin
			if p.Status == domain.BetStatusRefunded {
				kind = domain.LedgerRefund
			}
			if err := tx.AppendLedger(ctx, domain.LedgerEntry{
				ID:           uuid.NewString(),
				AccountID:    p.AccountID,
				Kind:         kind,
				Amount:       p.Amount,
				BalanceAfter: balance,
				MarketID:     m.ID,
				BetID:        p.BetID,
				Description:  fmt.Sprintf("%s settlement of market %s", status, m.ID),
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		if err := tx.SetMarketStatus(ctx, m.ID, status, resolution, now); err != nil {
			return err
		}
		settlement = result
		return nil
	})
	if err != nil {
		return pricing.Settlement{}, err
	}

	s.fx.invalidateOdds(ctx, marketID)
	return settlement, nil
}
