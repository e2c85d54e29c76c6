package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// ListByAccount returns the journal of an account, newest first.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, account_id, kind, amount_cents, balance_after_cents,
		       COALESCE(market_id, ''), COALESCE(bet_id, ''), description, created_at
		FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}
	query, args = appendListOpts(query, args, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e             domain.LedgerEntry
			kind          string
			amount, after int64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &kind, &amount, &after,
			&e.MarketID, &e.BetID, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Kind = domain.LedgerKind(kind)
		e.Amount = domain.FromCents(amount)
		e.BalanceAfter = domain.FromCents(after)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger rows: %w", err)
	}
	return entries, nil
}
