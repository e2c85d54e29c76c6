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

// MarketStore implements domain.MarketStore on SQLite.
type MarketStore struct {
	db *sql.DB
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a MarketStore on the client's database.
func NewMarketStore(c *Client) *MarketStore {
	return &MarketStore{db: c.db}
}

const marketColumns = `id, question, total_pool_cents, status, COALESCE(resolution_result, ''),
	ends_at, created_at, updated_at, settled_at`

// Create inserts a market and its outcome rows with empty pools.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin create market: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO markets (id, question, total_pool_cents, status, ends_at, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?)`,
		m.ID, m.Question, string(m.Status), toNanos(m.EndsAt), toNanos(m.CreatedAt), toNanos(m.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create market %s: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: create market %s: %w", m.ID, err)
	}

	for i, o := range m.Outcomes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO market_outcomes (market_id, position, name, pool_cents) VALUES (?, ?, ?, 0)`,
			m.ID, i, o); err != nil {
			return fmt.Errorf("sqlite: create outcome %q of %s: %w", o, m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market with its outcome pools.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, s.db, id)
}

// List returns markets filtered by status (empty for all), newest first.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query, args = applyListOpts(query, args, "created_at", opts)
	return listMarkets(ctx, s.db, query, args...)
}

// ListSettledBefore returns resolved or canceled markets settled before the
// given time, oldest first.
func (s *MarketStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets
		WHERE status IN ('RESOLVED', 'CANCELED') AND settled_at < ?
		ORDER BY settled_at ASC`
	return listMarkets(ctx, s.db, query, toNanos(before))
}

func getMarket(ctx context.Context, q execer, id string) (domain.Market, error) {
	m, err := scanMarket(q.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("sqlite: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("sqlite: get market %s: %w", id, err)
	}
	if err := loadOutcomes(ctx, q, []*domain.Market{&m}); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func listMarkets(ctx context.Context, q execer, query string, args ...any) ([]domain.Market, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list markets: %w", err)
	}

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: list markets rows: %w", err)
	}

	ptrs := make([]*domain.Market, len(markets))
	for i := range markets {
		ptrs[i] = &markets[i]
	}
	if err := loadOutcomes(ctx, q, ptrs); err != nil {
		return nil, err
	}
	return markets, nil
}

// loadOutcomes fills Outcomes and Pools for each market. The market rows
// must be fully read first: the pool has a single connection.
func loadOutcomes(ctx context.Context, q execer, markets []*domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	args := make([]any, len(markets))
	byID := make(map[string]*domain.Market, len(markets))
	for i, m := range markets {
		args[i] = m.ID
		m.Outcomes = nil
		m.Pools = make(map[string]decimal.Decimal)
		byID[m.ID] = m
	}

	query := `SELECT market_id, name, pool_cents FROM market_outcomes
		WHERE market_id IN (` + placeholders(len(args)) + `)
		ORDER BY market_id, position`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: load outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			marketID, name string
			pool           int64
		)
		if err := rows.Scan(&marketID, &name, &pool); err != nil {
			return fmt.Errorf("sqlite: scan outcome: %w", err)
		}
		m := byID[marketID]
		m.Outcomes = append(m.Outcomes, name)
		m.Pools[name] = domain.FromCents(pool)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: load outcomes rows: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarket(row scanner) (domain.Market, error) {
	var (
		m                           domain.Market
		total, ends, created, updtd int64
		settled                     sql.NullInt64
		status                      string
	)
	err := row.Scan(&m.ID, &m.Question, &total, &status, &m.ResolutionResult,
		&ends, &created, &updtd, &settled)
	if err != nil {
		return domain.Market{}, err
	}
	m.TotalPool = domain.FromCents(total)
	m.Status = domain.MarketStatus(status)
	m.EndsAt = fromNanos(ends)
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updtd)
	m.SettledAt = fromNullNanos(settled)
	return m, nil
}
