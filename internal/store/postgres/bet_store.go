package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

var _ domain.BetStore = (*BetStore)(nil)

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betColumns = `id, market_id, account_id, side, amount_cents, odds_micros,
	potential_payout_cents, status, payout_cents, placed_at, settled_at`

// GetByID retrieves a single bet.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, s.pool, id, false)
}

// ListByMarket returns the bets on a market, newest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.list(ctx, "market_id", marketID, opts)
}

// ListByAccount returns the bets placed by an account, newest first.
func (s *BetStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.list(ctx, "account_id", accountID, opts)
}

func (s *BetStore) list(ctx context.Context, column, value string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE ` + column + ` = $1`
	args := []any{value}
	query, args = appendListOpts(query, args, "placed_at", opts)

	return queryBets(ctx, s.pool, query, args...)
}

func getBet(ctx context.Context, q querier, id string, forUpdate bool) (domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	b, err := scanBet(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, fmt.Errorf("postgres: bet %s: %w", id, domain.ErrNotFound)
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

func queryBets(ctx context.Context, q querier, query string, args ...any) ([]domain.Bet, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b                               domain.Bet
		amount, odds, potential, payout int64
		status                          string
	)
	err := row.Scan(
		&b.ID, &b.MarketID, &b.AccountID, &b.Side, &amount, &odds,
		&potential, &status, &payout, &b.PlacedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Amount = domain.FromCents(amount)
	b.OddsAtEntry = domain.FromMicros(odds)
	b.PotentialPayout = domain.FromCents(potential)
	b.Payout = domain.FromCents(payout)
	b.Status = domain.BetStatus(status)
	return b, nil
}
