package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// BetStore implements domain.BetStore on SQLite.
type BetStore struct {
	db *sql.DB
}

var _ domain.BetStore = (*BetStore)(nil)

// NewBetStore creates a BetStore on the client's database.
func NewBetStore(c *Client) *BetStore {
	return &BetStore{db: c.db}
}

const betColumns = `id, market_id, account_id, side, amount_cents, odds_micros,
	potential_payout_cents, status, payout_cents, placed_at, settled_at`

// GetByID retrieves a single bet.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, s.db, id)
}

// ListByMarket returns the bets on a market, newest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query, args := applyListOpts(`SELECT `+betColumns+` FROM bets WHERE market_id = ?`,
		[]any{marketID}, "placed_at", opts)
	return queryBets(ctx, s.db, query, args...)
}

// ListByAccount returns the bets placed by an account, newest first.
func (s *BetStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query, args := applyListOpts(`SELECT `+betColumns+` FROM bets WHERE account_id = ?`,
		[]any{accountID}, "placed_at", opts)
	return queryBets(ctx, s.db, query, args...)
}

func getBet(ctx context.Context, q execer, id string) (domain.Bet, error) {
	b, err := scanBet(q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bet{}, fmt.Errorf("sqlite: bet %s: %w", id, domain.ErrNotFound)
		}
		return domain.Bet{}, fmt.Errorf("sqlite: get bet %s: %w", id, err)
	}
	return b, nil
}

func queryBets(ctx context.Context, q execer, query string, args ...any) ([]domain.Bet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list bets rows: %w", err)
	}
	return bets, nil
}

func scanBet(row scanner) (domain.Bet, error) {
	var (
		b                                       domain.Bet
		amount, odds, potential, payout, placed int64
		settled                                 sql.NullInt64
		status                                  string
	)
	err := row.Scan(&b.ID, &b.MarketID, &b.AccountID, &b.Side, &amount, &odds,
		&potential, &status, &payout, &placed, &settled)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Amount = domain.FromCents(amount)
	b.OddsAtEntry = domain.FromMicros(odds)
	b.PotentialPayout = domain.FromCents(potential)
	b.Payout = domain.FromCents(payout)
	b.Status = domain.BetStatus(status)
	b.PlacedAt = fromNanos(placed)
	b.SettledAt = fromNullNanos(settled)
	return b, nil
}
