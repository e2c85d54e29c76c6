package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// SQLSTATE codes the store maps onto domain errors.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// TxRunner implements domain.TxRunner with serializable pgx transactions.
type TxRunner struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TxRunner = (*TxRunner)(nil)
	_ domain.Tx       = (*tx)(nil)
)

// NewTxRunner creates a TxRunner backed by the given connection pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx runs fn in a SERIALIZABLE transaction. Any error from fn rolls
// the transaction back. Serialization failures and deadlocks are reported as
// domain.ErrConcurrencyConflict so the caller can retry.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, t domain.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{tx: ptx})
	})
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("postgres: tx: %w", domain.ErrConcurrencyConflict)
		}
		return err
	}
	return nil
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) LockMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, t.tx, id, true)
}

func (t *tx) CountBets(ctx context.Context, marketID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM bets WHERE market_id = $1`, marketID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count bets %s: %w", marketID, err)
	}
	return n, nil
}

func (t *tx) AddStake(ctx context.Context, marketID, outcome string, amount decimal.Decimal) error {
	cents := domain.ToCents(amount)

	tag, err := t.tx.Exec(ctx,
		`UPDATE market_outcomes SET pool_cents = pool_cents + $3 WHERE market_id = $1 AND name = $2`,
		marketID, outcome, cents)
	if err != nil {
		return fmt.Errorf("postgres: add stake to %s/%s: %w", marketID, outcome, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: add stake: %w: %q", domain.ErrInvalidOutcome, outcome)
	}

	if _, err := t.tx.Exec(ctx,
		`UPDATE markets SET total_pool_cents = total_pool_cents + $2, updated_at = NOW() WHERE id = $1`,
		marketID, cents); err != nil {
		return fmt.Errorf("postgres: add stake to market %s: %w", marketID, err)
	}
	return nil
}

func (t *tx) SetMarketStatus(ctx context.Context, id string, status domain.MarketStatus, result string, at time.Time) error {
	var (
		resultArg  any
		settledArg any
	)
	if result != "" {
		resultArg = result
	}
	if status != domain.MarketStatusOpen {
		settledArg = at
	}

	const query = `
		UPDATE markets
		SET status = $2, resolution_result = $3, settled_at = $4, updated_at = $5
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query, id, string(status), resultArg, settledArg, at)
	if err != nil {
		return fmt.Errorf("postgres: set market %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) LockBet(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, t.tx, id, true)
}

func (t *tx) LockActiveBets(ctx context.Context, marketID string) ([]domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets
		WHERE market_id = $1 AND status = 'ACTIVE'
		ORDER BY placed_at, id
		FOR UPDATE`
	return queryBets(ctx, t.tx, query, marketID)
}

func (t *tx) InsertBet(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, market_id, account_id, side, amount_cents, odds_micros,
			potential_payout_cents, status, payout_cents, placed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := t.tx.Exec(ctx, query,
		b.ID, b.MarketID, b.AccountID, b.Side,
		domain.ToCents(b.Amount), domain.ToMicros(b.OddsAtEntry),
		domain.ToCents(b.PotentialPayout), string(b.Status),
		domain.ToCents(b.Payout), b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %s: %w", b.ID, err)
	}
	return nil
}

func (t *tx) SettleBet(ctx context.Context, id string, status domain.BetStatus, payout decimal.Decimal, at time.Time) error {
	const query = `
		UPDATE bets SET status = $2, payout_cents = $3, settled_at = $4
		WHERE id = $1 AND status = 'ACTIVE'`
	tag, err := t.tx.Exec(ctx, query, id, string(status), domain.ToCents(payout), at)
	if err != nil {
		return fmt.Errorf("postgres: settle bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settle bet %s is no longer active: %w", id, domain.ErrConcurrencyConflict)
	}
	return nil
}

func (t *tx) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts SET balance_cents = balance_cents - $2, updated_at = NOW()
		WHERE id = $1 AND balance_cents >= $2
		RETURNING balance_cents`

	var balance int64
	err := t.tx.QueryRow(ctx, query, accountID, domain.ToCents(amount)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := t.balance(ctx, accountID); getErr != nil {
				return decimal.Zero, getErr
			}
			return decimal.Zero, fmt.Errorf("postgres: debit %s: %w", accountID, domain.ErrInsufficientFunds)
		}
		return decimal.Zero, fmt.Errorf("postgres: debit %s: %w", accountID, err)
	}
	return domain.FromCents(balance), nil
}

func (t *tx) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts SET balance_cents = balance_cents + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance_cents`

	var balance int64
	err := t.tx.QueryRow(ctx, query, accountID, domain.ToCents(amount)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("postgres: account %s: %w", accountID, domain.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("postgres: credit %s: %w", accountID, err)
	}
	return domain.FromCents(balance), nil
}

func (t *tx) AppendLedger(ctx context.Context, e domain.LedgerEntry) error {
	const query = `
		INSERT INTO ledger_entries (
			id, account_id, kind, amount_cents, balance_after_cents,
			market_id, bet_id, description, created_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`
	_, err := t.tx.Exec(ctx, query,
		e.ID, e.AccountID, string(e.Kind),
		domain.ToCents(e.Amount), domain.ToCents(e.BalanceAfter),
		e.MarketID, e.BetID, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append ledger for %s: %w", e.AccountID, err)
	}
	return nil
}

func (t *tx) balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `SELECT balance_cents FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("postgres: account %s: %w", accountID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("postgres: read balance %s: %w", accountID, err)
	}
	return balance, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func isConflict(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
