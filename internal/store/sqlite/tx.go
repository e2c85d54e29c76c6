package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// TxRunner implements domain.TxRunner on SQLite. With a single connection
// every transaction runs alone, which gives the same guarantees as a
// serializable transaction with row locks.
type TxRunner struct {
	db *sql.DB
}

var (
	_ domain.TxRunner = (*TxRunner)(nil)
	_ domain.Tx       = (*tx)(nil)
)

// NewTxRunner creates a TxRunner on the client's database.
func NewTxRunner(c *Client) *TxRunner {
	return &TxRunner{db: c.db}
}

// RunInTx runs fn in a transaction that commits only if fn returns nil.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, t domain.Tx) error) error {
	stx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.mapErr(fmt.Errorf("sqlite: begin tx: %w", err))
	}

	if err := fn(ctx, &tx{tx: stx}); err != nil {
		_ = stx.Rollback()
		return r.mapErr(err)
	}
	if err := stx.Commit(); err != nil {
		return r.mapErr(fmt.Errorf("sqlite: commit: %w", err))
	}
	return nil
}

func (r *TxRunner) mapErr(err error) error {
	if isBusy(err) {
		return fmt.Errorf("sqlite: tx: %w", domain.ErrConcurrencyConflict)
	}
	return err
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) LockMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, t.tx, id)
}

func (t *tx) CountBets(ctx context.Context, marketID string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bets WHERE market_id = ?`, marketID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count bets %s: %w", marketID, err)
	}
	return n, nil
}

func (t *tx) AddStake(ctx context.Context, marketID, outcome string, amount decimal.Decimal) error {
	cents := domain.ToCents(amount)

	res, err := t.tx.ExecContext(ctx,
		`UPDATE market_outcomes SET pool_cents = pool_cents + ? WHERE market_id = ? AND name = ?`,
		cents, marketID, outcome)
	if err != nil {
		return fmt.Errorf("sqlite: add stake to %s/%s: %w", marketID, outcome, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: add stake: %w: %q", domain.ErrInvalidOutcome, outcome)
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE markets SET total_pool_cents = total_pool_cents + ?, updated_at = ? WHERE id = ?`,
		cents, toNanos(time.Now()), marketID); err != nil {
		return fmt.Errorf("sqlite: add stake to market %s: %w", marketID, err)
	}
	return nil
}

func (t *tx) SetMarketStatus(ctx context.Context, id string, status domain.MarketStatus, result string, at time.Time) error {
	resultArg := sql.NullString{String: result, Valid: result != ""}
	var settled sql.NullInt64
	if status != domain.MarketStatusOpen {
		settled = nullNanos(&at)
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE markets SET status = ?, resolution_result = ?, settled_at = ?, updated_at = ? WHERE id = ?`,
		string(status), resultArg, settled, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("sqlite: set market %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: market %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) LockBet(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, t.tx, id)
}

func (t *tx) LockActiveBets(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return queryBets(ctx, t.tx, `SELECT `+betColumns+` FROM bets
		WHERE market_id = ? AND status = 'ACTIVE'
		ORDER BY placed_at, rowid`, marketID)
}

func (t *tx) InsertBet(ctx context.Context, b domain.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (
			id, market_id, account_id, side, amount_cents, odds_micros,
			potential_payout_cents, status, payout_cents, placed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.MarketID, b.AccountID, b.Side,
		domain.ToCents(b.Amount), domain.ToMicros(b.OddsAtEntry),
		domain.ToCents(b.PotentialPayout), string(b.Status),
		domain.ToCents(b.Payout), toNanos(b.PlacedAt))
	if err != nil {
		return fmt.Errorf("sqlite: insert bet %s: %w", b.ID, err)
	}
	return nil
}

func (t *tx) SettleBet(ctx context.Context, id string, status domain.BetStatus, payout decimal.Decimal, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bets SET status = ?, payout_cents = ?, settled_at = ? WHERE id = ? AND status = 'ACTIVE'`,
		string(status), domain.ToCents(payout), toNanos(at), id)
	if err != nil {
		return fmt.Errorf("sqlite: settle bet %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: settle bet %s is no longer active: %w", id, domain.ErrConcurrencyConflict)
	}
	return nil
}

func (t *tx) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	cents := domain.ToCents(amount)

	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - ?, updated_at = ?
		WHERE id = ? AND balance_cents >= ?
		RETURNING balance_cents`,
		cents, toNanos(time.Now()), accountID, cents).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := t.accountExists(ctx, accountID); err != nil {
				return decimal.Zero, err
			}
			return decimal.Zero, fmt.Errorf("sqlite: debit %s: %w", accountID, domain.ErrInsufficientFunds)
		}
		return decimal.Zero, fmt.Errorf("sqlite: debit %s: %w", accountID, err)
	}
	return domain.FromCents(balance), nil
}

func (t *tx) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
		WHERE id = ?
		RETURNING balance_cents`,
		domain.ToCents(amount), toNanos(time.Now()), accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("sqlite: account %s: %w", accountID, domain.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("sqlite: credit %s: %w", accountID, err)
	}
	return domain.FromCents(balance), nil
}

func (t *tx) AppendLedger(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, account_id, kind, amount_cents, balance_after_cents,
			market_id, bet_id, description, created_at
		) VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`,
		e.ID, e.AccountID, string(e.Kind),
		domain.ToCents(e.Amount), domain.ToCents(e.BalanceAfter),
		e.MarketID, e.BetID, e.Description, toNanos(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: append ledger for %s: %w", e.AccountID, err)
	}
	return nil
}

func (t *tx) accountExists(ctx context.Context, accountID string) error {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: account %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: read account %s: %w", accountID, err)
	}
	return nil
}
