package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Payout is the settlement decision for one bet.
type Payout struct {
	BetID     string           `json:"bet_id"`
	AccountID string           `json:"account_id"`
	Stake     decimal.Decimal  `json:"stake"`
	Status    domain.BetStatus `json:"status"`
	Amount    decimal.Decimal  `json:"amount"`
	// Clamped is set when the MinOdds floor raised the payout.
	Clamped bool `json:"clamped,omitempty"`
}

// Settlement is the complete outcome of resolving or voiding a market.
type Settlement struct {
	MarketID      string          `json:"market_id"`
	Winner        string          `json:"winner,omitempty"`
	TotalPool     decimal.Decimal `json:"total_pool"`
	Distributable decimal.Decimal `json:"distributable"`
	WinningPool   decimal.Decimal `json:"winning_pool"`
	Payouts       []Payout        `json:"payouts"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	// Shortfall is how far the floor pushed winner payouts above the
	// distributable prize. The house covers it from its commission.
	Shortfall decimal.Decimal `json:"shortfall"`
}

// Winners returns the number of bets settled as WON.
func (s Settlement) Winners() int {
	n := 0
	for _, p := range s.Payouts {
		if p.Status == domain.BetStatusWon {
			n++
		}
	}
	return n
}

// PlanResolution computes the payout of every ACTIVE bet when the market
// resolves to winner. A winner receives stake × distributable / winning
// pool, truncated to the cent and never less than stake × MinOdds. Losers
// receive nothing. If nobody staked the winning outcome every active stake
// is refunded in full.
func (e *Engine) PlanResolution(m domain.Market, winner string, bets []domain.Bet) (Settlement, error) {
	if m.Status != domain.MarketStatusOpen {
		return Settlement{}, fmt.Errorf("%w: market %s is %s", domain.ErrInvalidMarketState, m.ID, m.Status)
	}
	if !m.HasOutcome(winner) {
		return Settlement{}, fmt.Errorf("%w: %q is not an outcome of market %s", domain.ErrInvalidOutcome, winner, m.ID)
	}

	s := Settlement{
		MarketID:      m.ID,
		Winner:        winner,
		TotalPool:     m.TotalPool,
		Distributable: e.Distributable(m.TotalPool),
		WinningPool:   m.Pool(winner),
		TotalPaid:     decimal.Zero,
		TotalRefunded: decimal.Zero,
		Shortfall:     decimal.Zero,
	}

	if !s.WinningPool.IsPositive() {
		s.Payouts, s.TotalRefunded = refundAll(bets)
		return s, nil
	}

	for _, b := range bets {
		if !b.IsActive() {
			continue
		}
		p := Payout{BetID: b.ID, AccountID: b.AccountID, Stake: b.Amount, Amount: decimal.Zero}
		if b.Side != winner {
			p.Status = domain.BetStatusLost
			s.Payouts = append(s.Payouts, p)
			continue
		}

		p.Status = domain.BetStatusWon
		share := domain.TruncateCents(b.Amount.Mul(s.Distributable).DivRound(s.WinningPool, divPrecision))
		floor := b.Amount.Mul(e.cfg.MinOdds).RoundCeil(2)
		if share.LessThan(floor) {
			share = floor
			p.Clamped = true
		}
		p.Amount = share
		s.TotalPaid = s.TotalPaid.Add(share)
		s.Payouts = append(s.Payouts, p)
	}

	if over := s.TotalPaid.Sub(s.Distributable); over.IsPositive() {
		s.Shortfall = over
	}
	return s, nil
}

// PlanVoid refunds every ACTIVE bet its exact stored stake. No commission
// is retained and no amount is recomputed from odds.
func (e *Engine) PlanVoid(m domain.Market, bets []domain.Bet) (Settlement, error) {
	if m.Status != domain.MarketStatusOpen {
		return Settlement{}, fmt.Errorf("%w: market %s is %s", domain.ErrInvalidMarketState, m.ID, m.Status)
	}
	payouts, refunded := refundAll(bets)
	return Settlement{
		MarketID:      m.ID,
		TotalPool:     m.TotalPool,
		Distributable: decimal.Zero,
		WinningPool:   decimal.Zero,
		Payouts:       payouts,
		TotalPaid:     decimal.Zero,
		TotalRefunded: refunded,
		Shortfall:     decimal.Zero,
	}, nil
}

func refundAll(bets []domain.Bet) ([]Payout, decimal.Decimal) {
	total := decimal.Zero
	var payouts []Payout
	for _, b := range bets {
		if !b.IsActive() {
			continue
		}
		payouts = append(payouts, Payout{
			BetID:     b.ID,
			AccountID: b.AccountID,
			Stake:     b.Amount,
			Status:    domain.BetStatusRefunded,
			Amount:    b.Amount,
		})
		total = total.Add(b.Amount)
	}
	return payouts, total
}
