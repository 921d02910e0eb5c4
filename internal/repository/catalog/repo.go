// Package catalog implements the read-only record store over the pricing tables.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domcat "github.com/carelens/costnav/internal/domain/catalog"
)

// Querier is the subset of pgxpool.Pool used by this repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo reads provider/price rows from Postgres.
type Repo struct {
	q Querier
}

// New creates a catalog repository.
func New(q Querier) *Repo {
	return &Repo{q: q}
}

// Search returns provider/price rows matching the filter, ordered by
// average covered charges ascending.
func (r *Repo) Search(ctx context.Context, f domcat.Filter) ([]domcat.Row, error) {
	sql, args := buildSearchSQL(f)

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()

	var out []domcat.Row
	for rows.Next() {
		var row domcat.Row
		if err := rows.Scan(
			&row.ProviderID, &row.ProviderName, &row.ProviderCity, &row.ProviderState,
			&row.ProviderZip, &row.ProcedureLabel, &row.TotalDischarges,
			&row.AverageCoveredCharges, &row.AverageTotalPayments, &row.AverageMedicarePayments,
			&row.Rating,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return out, nil
}
