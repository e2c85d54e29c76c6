package sqlite

import "github.com/alanyoungcy/poolbet/internal/domain"

// applyListOpts appends the time window, ordering and pagination of opts to
// a query whose WHERE clause is already open.
func applyListOpts(query string, args []any, timeColumn string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += " AND " + timeColumn + " >= ?"
		args = append(args, toNanos(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND " + timeColumn + " <= ?"
		args = append(args, toNanos(*opts.Until))
	}

	query += " ORDER BY " + timeColumn + " DESC, rowid DESC"

	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}
	return query, args
}
