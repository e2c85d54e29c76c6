package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// CashoutValue values an early exit of an ACTIVE bet on an OPEN market:
//
//	potential_payout × pools[side] / total_pool × (1 − CashoutFee)
//
// truncated to the cent. The pool ratio is the pool-implied win
// probability, so the value never exceeds the potential payout. A value of
// zero or less is refused with ErrCashoutUnavailable.
func (e *Engine) CashoutValue(m domain.Market, b domain.Bet) (decimal.Decimal, error) {
	if m.Status != domain.MarketStatusOpen {
		return decimal.Zero, fmt.Errorf("%w: market %s is %s", domain.ErrInvalidMarketState, m.ID, m.Status)
	}
	if b.MarketID != m.ID {
		return decimal.Zero, fmt.Errorf("%w: bet %s does not belong to market %s", domain.ErrCashoutUnavailable, b.ID, m.ID)
	}
	if !b.IsActive() {
		return decimal.Zero, fmt.Errorf("%w: bet %s is %s", domain.ErrCashoutUnavailable, b.ID, b.Status)
	}
	if !m.TotalPool.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: market %s has an empty pool", domain.ErrCashoutUnavailable, m.ID)
	}

	probability := m.Pool(b.Side).DivRound(m.TotalPool, divPrecision)
	keep := decimal.NewFromInt(1).Sub(e.cfg.CashoutFee)
	value := domain.TruncateCents(b.PotentialPayout.Mul(probability).Mul(keep))

	if value.GreaterThan(b.PotentialPayout) {
		value = b.PotentialPayout
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bet %s is worth nothing right now", domain.ErrCashoutUnavailable, b.ID)
	}
	return value, nil
}
