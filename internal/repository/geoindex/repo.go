// Package geoindex resolves zip codes to coordinates from the zip_codes table.
package geoindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carelens/costnav/internal/domain"
	domcat "github.com/carelens/costnav/internal/domain/catalog"
)

// Querier is the subset of pgxpool.Pool used by this repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo looks up zip-code coordinates.
type Repo struct {
	q Querier
}

// New creates a geo index repository.
func New(q Querier) *Repo {
	return &Repo{q: q}
}

// Lookup resolves a single zip code. A missing zip yields an
// UnknownLocationError; it is never defaulted to a coordinate.
func (r *Repo) Lookup(ctx context.Context, zip string) (domcat.Location, error) {
	var loc domcat.Location
	err := r.q.QueryRow(ctx,
		`SELECT latitude, longitude FROM zip_codes WHERE zip_code = $1`, zip,
	).Scan(&loc.Latitude, &loc.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return domcat.Location{}, domain.NewUnknownLocation(zip)
	}
	if err != nil {
		return domcat.Location{}, fmt.Errorf("lookup zip %s: %w", zip, err)
	}
	return loc, nil
}

// LookupMany resolves a batch of zip codes in one round trip. Unresolved
// zips are simply absent from the result map; callers treat absence as
// "distance unknown".
func (r *Repo) LookupMany(ctx context.Context, zips []string) (map[string]domcat.Location, error) {
	out := make(map[string]domcat.Location, len(zips))
	if len(zips) == 0 {
		return out, nil
	}

	rows, err := r.q.Query(ctx,
		`SELECT zip_code, latitude, longitude FROM zip_codes WHERE zip_code = ANY($1)`, zips,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup zips: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			zip string
			loc domcat.Location
		)
		if err := rows.Scan(&zip, &loc.Latitude, &loc.Longitude); err != nil {
			return nil, fmt.Errorf("scan zip row: %w", err)
		}
		out[zip] = loc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zip rows: %w", err)
	}
	return out, nil
}
