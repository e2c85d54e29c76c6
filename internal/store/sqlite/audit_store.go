package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// AuditStore implements domain.AuditStore on SQLite. Detail is stored as
// JSON text.
type AuditStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore on the client's database.
func NewAuditStore(c *Client) *AuditStore {
	return &AuditStore{db: c.db, now: time.Now}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	var marketID sql.NullString
	if id := domain.AuditMarketID(detail); id != "" {
		marketID = sql.NullString{String: id, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, market_id, detail, created_at) VALUES (?, ?, ?, ?)`,
		event, marketID, string(detailJSON), toNanos(s.now())); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first, optionally for one market.
func (s *AuditStore) List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, COALESCE(market_id, ''), detail, created_at FROM audit_log WHERE 1=1`
	var args []any
	if marketID != "" {
		query += " AND market_id = ?"
		args = append(args, marketID)
	}
	query, args = applyListOpts(query, args, "created_at", opts)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &e.MarketID, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = fromNanos(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries rows: %w", err)
	}
	return entries, nil
}
