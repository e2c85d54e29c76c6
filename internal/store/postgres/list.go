package postgres

import (
	"fmt"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// appendListOpts appends the time window, ordering and pagination of opts to
// a query whose WHERE clause is already open. Placeholders continue after
// the ones already in args.
func appendListOpts(query string, args []any, timeColumn string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND %s >= $%d", timeColumn, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND %s <= $%d", timeColumn, len(args))
	}

	query += " ORDER BY " + timeColumn + " DESC, id DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
