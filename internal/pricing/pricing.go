// Package pricing implements the pooled-market odds and settlement math. It
// is pure computation over a market's stake pools: no I/O, no clocks beyond
// what the caller passes in, no shared state.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// divPrecision is the number of decimal places kept in intermediate ratios.
const divPrecision = 16

// Config holds the house parameters of the pool model.
type Config struct {
	// CommissionRate is the share of the total pool retained by the house.
	CommissionRate decimal.Decimal
	// MinOdds is the floor applied to every quoted odds value and payout.
	MinOdds decimal.Decimal
	// DefaultOdds is quoted for an outcome whose pool is still empty.
	DefaultOdds decimal.Decimal
	// CashoutFee is the discount applied to early-exit valuations.
	CashoutFee decimal.Decimal
}

// DefaultConfig returns the platform's standard parameters.
func DefaultConfig() Config {
	return Config{
		CommissionRate: decimal.RequireFromString("0.35"),
		MinOdds:        decimal.RequireFromString("1.01"),
		DefaultOdds:    decimal.RequireFromString("2.0"),
		CashoutFee:     decimal.RequireFromString("0.10"),
	}
}

// Validate checks the parameters are usable.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("pricing: commission_rate must be in [0,1), got %s", c.CommissionRate)
	}
	if c.MinOdds.LessThan(one) {
		return fmt.Errorf("pricing: min_odds must be >= 1, got %s", c.MinOdds)
	}
	if c.DefaultOdds.LessThan(c.MinOdds) {
		return fmt.Errorf("pricing: default_odds %s is below min_odds %s", c.DefaultOdds, c.MinOdds)
	}
	if c.CashoutFee.IsNegative() || c.CashoutFee.GreaterThanOrEqual(one) {
		return fmt.Errorf("pricing: cashout_fee must be in [0,1), got %s", c.CashoutFee)
	}
	return nil
}

// Engine evaluates odds, settlements and cash-outs for a fixed Config.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Distributable returns the part of the pool available to winners.
func (e *Engine) Distributable(totalPool decimal.Decimal) decimal.Decimal {
	return totalPool.Mul(decimal.NewFromInt(1).Sub(e.cfg.CommissionRate))
}

// OddsForPool prices a single outcome. An empty pool gets DefaultOdds; any
// value under MinOdds is raised to MinOdds.
func (e *Engine) OddsForPool(totalPool, outcomePool decimal.Decimal) decimal.Decimal {
	if !outcomePool.IsPositive() {
		return e.cfg.DefaultOdds
	}
	odds := e.Distributable(totalPool).DivRound(outcomePool, divPrecision).Truncate(domain.OddsScale)
	return decimal.Max(odds, e.cfg.MinOdds)
}

// Odds prices every listed outcome from the given pools.
func (e *Engine) Odds(totalPool decimal.Decimal, pools map[string]decimal.Decimal, outcomes []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(outcomes))
	for _, o := range outcomes {
		out[o] = e.OddsForPool(totalPool, pools[o])
	}
	return out
}

// OddsFor prices one declared outcome of the market.
func (e *Engine) OddsFor(m domain.Market, outcome string) (decimal.Decimal, error) {
	if !m.HasOutcome(outcome) {
		return decimal.Zero, fmt.Errorf("%w: %q is not an outcome of market %s", domain.ErrInvalidOutcome, outcome, m.ID)
	}
	return e.OddsForPool(m.TotalPool, m.Pool(outcome)), nil
}

// Snapshot builds the full odds table of a market at time now.
func (e *Engine) Snapshot(m domain.Market, now time.Time) domain.OddsSnapshot {
	pools := make(map[string]decimal.Decimal, len(m.Outcomes))
	for _, o := range m.Outcomes {
		pools[o] = m.Pool(o)
	}
	return domain.OddsSnapshot{
		MarketID:      m.ID,
		Status:        m.Status,
		Odds:          e.Odds(m.TotalPool, pools, m.Outcomes),
		Pools:         pools,
		TotalPool:     m.TotalPool,
		Distributable: e.Distributable(m.TotalPool),
		ComputedAt:    now.UTC(),
	}
}

// Quote is the price a new stake locks in.
type Quote struct {
	Side            string          `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	OddsAtEntry     decimal.Decimal `json:"odds_at_entry"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
}

// QuoteBet prices a stake of amount on side using the pool state before the
// stake is added: the bettor gets the odds that were displayed when the bet
// was accepted, and only later bets see the effect of this stake.
func (e *Engine) QuoteBet(m domain.Market, side string, amount decimal.Decimal) (Quote, error) {
	if !amount.IsPositive() || !amount.Equal(domain.TruncateCents(amount)) {
		return Quote{}, fmt.Errorf("%w: stake must be a positive amount in cents, got %s", domain.ErrInvalidAmount, amount)
	}
	odds, err := e.OddsFor(m, side)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Side:            side,
		Amount:          amount,
		OddsAtEntry:     odds,
		PotentialPayout: domain.TruncateCents(amount.Mul(odds)),
	}, nil
}
