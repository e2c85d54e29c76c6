package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account. The opening balance is always zero; money
// only arrives through a deposit.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (id, name, balance_cents, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)`
	if _, err := s.pool.Exec(ctx, query, a.ID, a.Name, a.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create account %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves an account.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT id, name, balance_cents, created_at, updated_at FROM accounts WHERE id = $1`

	var (
		a       domain.Account
		balance int64
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	a.Balance = domain.FromCents(balance)
	return a, nil
}
