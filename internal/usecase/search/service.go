// Package search implements structured provider/price search with an
// optional geographic radius filter.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/carelens/costnav/internal/domain"
	domcat "github.com/carelens/costnav/internal/domain/catalog"
	"github.com/carelens/costnav/internal/domain/geo"
	domq "github.com/carelens/costnav/internal/domain/query"
)

// Params are the validated-on-entry search parameters. Zip and RadiusKM must
// be supplied together. Limit of 0 means unlimited.
type Params struct {
	DRG       string
	City      string
	State     string
	Zip       string
	RadiusKM  float64
	MinRating int
	Limit     int
}

// Service composes the record store, geo index, and distance scoring.
type Service struct {
	repo Repository
	geo  GeoIndex
}

// New creates a search service.
func New(repo Repository, geoIndex GeoIndex) *Service {
	return &Service{repo: repo, geo: geoIndex}
}

// Search returns matching rows in contract order: (distance asc, covered
// charges asc) when the geo filter is active, covered charges asc otherwise.
// Rows whose provider zip cannot be resolved are excluded from radius
// results, never given a fabricated distance.
func (s *Service) Search(ctx context.Context, p Params) ([]domcat.Row, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	rows, err := s.repo.Search(ctx, domcat.Filter{
		DRG:       p.DRG,
		City:      p.City,
		State:     p.State,
		MinRating: p.MinRating,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}

	if p.Zip != "" {
		rows, err = s.applyRadius(ctx, rows, p.Zip, p.RadiusKM)
		if err != nil {
			return nil, err
		}
	}

	if p.Limit > 0 && len(rows) > p.Limit {
		rows = rows[:p.Limit]
	}
	return rows, nil
}

func validateParams(p Params) error {
	if (p.Zip == "") != (p.RadiusKM == 0) {
		return fmt.Errorf("%w: zip and radius_km must be supplied together", domain.ErrInvalidQuery)
	}
	if p.Zip != "" && !domq.ValidZip(p.Zip) {
		return fmt.Errorf("%w: zip must be a 5-digit code", domain.ErrInvalidQuery)
	}
	if p.RadiusKM < 0 {
		return fmt.Errorf("%w: radius_km must be positive", domain.ErrInvalidQuery)
	}
	if p.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidQuery)
	}
	return nil
}

// applyRadius resolves the origin zip, computes distances for every row with
// a resolvable provider zip, drops the rest, and re-sorts.
func (s *Service) applyRadius(
	ctx context.Context, rows []domcat.Row, zip string, radiusKM float64,
) ([]domcat.Row, error) {
	origin, err := s.geo.Lookup(ctx, zip)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	zips := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.ProviderZip]; !ok {
			seen[row.ProviderZip] = struct{}{}
			zips = append(zips, row.ProviderZip)
		}
	}

	locs, err := s.geo.LookupMany(ctx, zips)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}

	kept := rows[:0]
	for _, row := range rows {
		loc, ok := locs[row.ProviderZip]
		if !ok {
			continue
		}
		d := geo.DistanceKM(origin.Latitude, origin.Longitude, loc.Latitude, loc.Longitude)
		if d > radiusKM {
			continue
		}
		dist := d
		row.DistanceKM = &dist
		kept = append(kept, row)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if *kept[i].DistanceKM != *kept[j].DistanceKM {
			return *kept[i].DistanceKM < *kept[j].DistanceKM
		}
		return kept[i].AverageCoveredCharges < kept[j].AverageCoveredCharges
	})
	return kept, nil
}
