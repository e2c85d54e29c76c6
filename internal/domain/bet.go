package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus tracks a bet from placement to its terminal state.
type BetStatus string

const (
	BetStatusActive    BetStatus = "ACTIVE"
	BetStatusWon       BetStatus = "WON"
	BetStatusLost      BetStatus = "LOST"
	BetStatusCashedOut BetStatus = "CASHED_OUT"
	BetStatusRefunded  BetStatus = "REFUNDED"
)

// Bet is a stake on one outcome of a market. OddsAtEntry is the snapshot
// taken from the pool state immediately before the stake was added.
type Bet struct {
	ID              string          `json:"id"`
	MarketID        string          `json:"market_id"`
	AccountID       string          `json:"account_id"`
	Side            string          `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	OddsAtEntry     decimal.Decimal `json:"odds_at_entry"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Status          BetStatus       `json:"status"`
	Payout          decimal.Decimal `json:"payout"`
	PlacedAt        time.Time       `json:"placed_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
}

// IsActive reports whether the bet still participates in settlement.
func (b Bet) IsActive() bool {
	return b.Status == BetStatusActive
}
