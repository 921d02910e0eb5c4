// Package query executes governor-authorized statements.
package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domq "github.com/carelens/costnav/internal/domain/query"
)

// Querier is the subset of pgxpool.Pool used by this repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo runs SafeQuery statements and returns rows as column→value maps.
type Repo struct {
	q Querier
}

// New creates a query execution repository.
func New(q Querier) *Repo {
	return &Repo{q: q}
}

// Execute runs an authorized statement. The row cap is re-enforced here even
// though authorized SQL already carries a LIMIT.
func (r *Repo) Execute(ctx context.Context, sq domq.SafeQuery) ([]map[string]any, error) {
	rows, err := r.q.Query(ctx, sq.SQL(), sq.Args()...)
	if err != nil {
		return nil, fmt.Errorf("execute authorized query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		if sq.RowCap() > 0 && len(out) >= sq.RowCap() {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return out, nil
}
