package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `id, question, total_pool_cents, status, COALESCE(resolution_result, ''),
	ends_at, created_at, updated_at, settled_at`

// Create inserts a market and its outcome rows with empty pools.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertMarket = `
			INSERT INTO markets (id, question, total_pool_cents, status, ends_at, created_at, updated_at)
			VALUES ($1, $2, 0, $3, $4, $5, $5)`
		if _, err := tx.Exec(ctx, insertMarket,
			m.ID, m.Question, string(m.Status), m.EndsAt, m.CreatedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, o := range m.Outcomes {
			batch.Queue(
				`INSERT INTO market_outcomes (market_id, position, name, pool_cents) VALUES ($1, $2, $3, 0)`,
				m.ID, i, o,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create market %s: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market with its outcome pools.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	m, err := getMarket(ctx, s.pool, id, false)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// List returns markets filtered by status (empty for all), newest first.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE 1=1`
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query, args = appendListOpts(query, args, "created_at", opts)

	return listMarkets(ctx, s.pool, query, args...)
}

// ListSettledBefore returns resolved or canceled markets settled before the
// given time, oldest first.
func (s *MarketStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets
		WHERE status IN ('RESOLVED', 'CANCELED') AND settled_at < $1
		ORDER BY settled_at ASC`
	return listMarkets(ctx, s.pool, query, before)
}

func getMarket(ctx context.Context, q querier, id string, forUpdate bool) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	m, err := scanMarket(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}

	if err := loadOutcomes(ctx, q, []*domain.Market{&m}); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func listMarkets(ctx context.Context, q querier, query string, args ...any) ([]domain.Market, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
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

// loadOutcomes fills Outcomes and Pools for each market in one query.
func loadOutcomes(ctx context.Context, q querier, markets []*domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	ids := make([]string, len(markets))
	byID := make(map[string]*domain.Market, len(markets))
	for i, m := range markets {
		ids[i] = m.ID
		m.Outcomes = nil
		m.Pools = make(map[string]decimal.Decimal)
		byID[m.ID] = m
	}

	const query = `
		SELECT market_id, name, pool_cents FROM market_outcomes
		WHERE market_id = ANY($1)
		ORDER BY market_id, position`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("postgres: load outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			marketID, name string
			pool           int64
		)
		if err := rows.Scan(&marketID, &name, &pool); err != nil {
			return fmt.Errorf("postgres: scan outcome: %w", err)
		}
		m := byID[marketID]
		m.Outcomes = append(m.Outcomes, name)
		m.Pools[name] = domain.FromCents(pool)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load outcomes rows: %w", err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m      domain.Market
		total  int64
		status string
	)
	err := row.Scan(
		&m.ID, &m.Question, &total, &status, &m.ResolutionResult,
		&m.EndsAt, &m.CreatedAt, &m.UpdatedAt, &m.SettledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.TotalPool = domain.FromCents(total)
	m.Status = domain.MarketStatus(status)
	return m, nil
}
