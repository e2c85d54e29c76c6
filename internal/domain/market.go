package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "OPEN"
	MarketStatusResolved MarketStatus = "RESOLVED"
	MarketStatusCanceled MarketStatus = "CANCELED"
)

// Bounds on the number of declared outcomes per market.
const (
	MinOutcomes = 2
	MaxOutcomes = 10
)

// Market is a pooled (parimutuel) betting market. Pools holds the accumulated
// stake per declared outcome and TotalPool is always their sum.
type Market struct {
	ID               string                     `json:"id"`
	Question         string                     `json:"question"`
	Outcomes         []string                   `json:"outcomes"`
	Pools            map[string]decimal.Decimal `json:"outcome_pools"`
	TotalPool        decimal.Decimal            `json:"total_pool"`
	Status           MarketStatus               `json:"status"`
	ResolutionResult string                     `json:"resolution_result,omitempty"`
	EndsAt           time.Time                  `json:"ends_at"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	SettledAt        *time.Time                 `json:"settled_at,omitempty"`
}

// HasOutcome reports whether name is one of the market's declared outcomes.
func (m Market) HasOutcome(name string) bool {
	for _, o := range m.Outcomes {
		if o == name {
			return true
		}
	}
	return false
}

// Pool returns the stake accumulated on the given outcome.
func (m Market) Pool(outcome string) decimal.Decimal {
	if p, ok := m.Pools[outcome]; ok {
		return p
	}
	return decimal.Zero
}

// AcceptsBets reports whether new stakes may be placed at time now.
func (m Market) AcceptsBets(now time.Time) bool {
	return m.Status == MarketStatusOpen && now.Before(m.EndsAt)
}

// PoolsConsistent checks the TotalPool invariant.
func (m Market) PoolsConsistent() bool {
	sum := decimal.Zero
	for _, o := range m.Outcomes {
		p := m.Pool(o)
		if p.IsNegative() {
			return false
		}
		sum = sum.Add(p)
	}
	return sum.Equal(m.TotalPool)
}

// NewMarket builds an OPEN market with empty pools after validating the
// outcome list. Outcome names are trimmed; duplicates are rejected.
func NewMarket(id, question string, outcomes []string, endsAt, now time.Time) (Market, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Market{}, fmt.Errorf("%w: question is required", ErrInvalidMarket)
	}
	if len(outcomes) < MinOutcomes || len(outcomes) > MaxOutcomes {
		return Market{}, fmt.Errorf("%w: need %d-%d outcomes, got %d",
			ErrInvalidMarket, MinOutcomes, MaxOutcomes, len(outcomes))
	}
	if !endsAt.After(now) {
		return Market{}, fmt.Errorf("%w: end time must be in the future", ErrInvalidMarket)
	}

	names := make([]string, 0, len(outcomes))
	pools := make(map[string]decimal.Decimal, len(outcomes))
	for _, o := range outcomes {
		o = strings.TrimSpace(o)
		if o == "" {
			return Market{}, fmt.Errorf("%w: empty outcome name", ErrInvalidMarket)
		}
		if _, dup := pools[o]; dup {
			return Market{}, fmt.Errorf("%w: duplicate outcome %q", ErrInvalidMarket, o)
		}
		names = append(names, o)
		pools[o] = decimal.Zero
	}

	return Market{
		ID:        id,
		Question:  question,
		Outcomes:  names,
		Pools:     pools,
		TotalPool: decimal.Zero,
		Status:    MarketStatusOpen,
		EndsAt:    endsAt.UTC(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}
