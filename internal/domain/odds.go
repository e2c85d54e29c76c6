package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OddsSnapshot is the odds table of a market at one instant. Odds are not
// static: any new stake produces a new snapshot.
type OddsSnapshot struct {
	MarketID      string                     `json:"market_id"`
	Status        MarketStatus               `json:"status"`
	Odds          map[string]decimal.Decimal `json:"odds"`
	Pools         map[string]decimal.Decimal `json:"outcome_pools"`
	TotalPool     decimal.Decimal            `json:"total_pool"`
	Distributable decimal.Decimal            `json:"distributable"`
	ComputedAt    time.Time                  `json:"computed_at"`
}
