package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// AccountStore implements domain.AccountStore on SQLite.
type AccountStore struct {
	db *sql.DB
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates an AccountStore on the client's database.
func NewAccountStore(c *Client) *AccountStore {
	return &AccountStore{db: c.db}
}

// Create inserts a new account with a zero balance.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance_cents, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		a.ID, a.Name, toNanos(a.CreatedAt), toNanos(a.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create account %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: create account %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves an account.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	var (
		a                         domain.Account
		balance, created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, balance_cents, created_at, updated_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &balance, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("sqlite: account %s: %w", id, domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("sqlite: get account %s: %w", id, err)
	}
	a.Balance = domain.FromCents(balance)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

// LedgerStore implements domain.LedgerStore on SQLite.
type LedgerStore struct {
	db *sql.DB
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a LedgerStore on the client's database.
func NewLedgerStore(c *Client) *LedgerStore {
	return &LedgerStore{db: c.db}
}

// ListByAccount returns the journal of an account, newest first.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query, args := applyListOpts(`
		SELECT id, account_id, kind, amount_cents, balance_after_cents,
		       COALESCE(market_id, ''), COALESCE(bet_id, ''), description, created_at
		FROM ledger_entries WHERE account_id = ?`,
		[]any{accountID}, "created_at", opts)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list ledger %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e                      domain.LedgerEntry
			kind                   string
			amount, after, created int64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &kind, &amount, &after,
			&e.MarketID, &e.BetID, &e.Description, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan ledger entry: %w", err)
		}
		e.Kind = domain.LedgerKind(kind)
		e.Amount = domain.FromCents(amount)
		e.BalanceAfter = domain.FromCents(after)
		e.CreatedAt = fromNanos(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list ledger rows: %w", err)
	}
	return entries, nil
}
