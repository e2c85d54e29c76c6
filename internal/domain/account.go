package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's spendable balance.
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerKind classifies a balance movement.
type LedgerKind string

const (
	LedgerDeposit    LedgerKind = "DEPOSIT"
	LedgerWithdrawal LedgerKind = "WITHDRAWAL"
	LedgerBet        LedgerKind = "BET"
	LedgerWin        LedgerKind = "WIN"
	LedgerRefund     LedgerKind = "REFUND"
	LedgerCashout    LedgerKind = "CASHOUT"
)

// LedgerEntry journals one balance change. Amount is signed: debits are
// negative. Entries are written in the same transaction as the change.
type LedgerEntry struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Kind         LedgerKind      `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	MarketID     string          `json:"market_id,omitempty"`
	BetID        string          `json:"bet_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
