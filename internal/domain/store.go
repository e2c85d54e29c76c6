package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore reads and creates markets. Pool and status changes only
// happen through a Tx.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Market, error)
}

// BetStore reads bets.
type BetStore interface {
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Bet, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Bet, error)
}

// AccountStore creates and reads accounts. Balances only change through a Tx.
type AccountStore interface {
	Create(ctx context.Context, a Account) error
	GetByID(ctx context.Context, id string) (Account, error)
}

// LedgerStore reads the balance journal.
type LedgerStore interface {
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]LedgerEntry, error)
}

// AuditEntry is a single audit log row. MarketID is copied from
// Detail["market_id"] when present so a market's trail can be queried.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	MarketID  string         `json:"market_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest first. A non-empty marketID restricts the
	// result to that market.
	List(ctx context.Context, marketID string, opts ListOpts) ([]AuditEntry, error)
}

// AuditMarketID extracts the market reference of an audit detail map.
func AuditMarketID(detail map[string]any) string {
	id, _ := detail["market_id"].(string)
	return id
}

// TxRunner executes fn inside one serializable transaction. The transaction
// commits only if fn returns nil. Serialization failures are reported as
// ErrConcurrencyConflict.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of row-locking reads and atomic writes a financial operation
// may perform. Every balance and pool change is an in-database increment or
// decrement; nothing is computed from a previously read value.
type Tx interface {
	// LockMarket reads a market and holds its row lock until commit.
	LockMarket(ctx context.Context, id string) (Market, error)
	// CountBets returns the number of bets ever placed on the market.
	CountBets(ctx context.Context, marketID string) (int, error)
	// AddStake increments the outcome pool and the total pool by amount.
	AddStake(ctx context.Context, marketID, outcome string, amount decimal.Decimal) error
	// SetMarketStatus moves the market to status. result is stored as the
	// resolution result and must be empty unless status is RESOLVED.
	SetMarketStatus(ctx context.Context, id string, status MarketStatus, result string, at time.Time) error

	// LockBet reads a bet and holds its row lock until commit.
	LockBet(ctx context.Context, id string) (Bet, error)
	// LockActiveBets reads every ACTIVE bet on the market under lock.
	LockActiveBets(ctx context.Context, marketID string) ([]Bet, error)
	InsertBet(ctx context.Context, b Bet) error
	// SettleBet moves an ACTIVE bet to a terminal status with its payout.
	SettleBet(ctx context.Context, id string, status BetStatus, payout decimal.Decimal, at time.Time) error

	// Debit subtracts amount from the balance only if the balance covers it,
	// returning the new balance or ErrInsufficientFunds.
	Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
	// Credit adds amount to the balance and returns the new balance.
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
	AppendLedger(ctx context.Context, e LedgerEntry) error
}
