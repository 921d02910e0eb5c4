package search

import (
	"context"

	domcat "github.com/carelens/costnav/internal/domain/catalog"
)

// Repository defines the storage contract for catalog searches.
type Repository interface {
	Search(ctx context.Context, f domcat.Filter) ([]domcat.Row, error)
}

// GeoIndex resolves zip codes to coordinates.
type GeoIndex interface {
	// Lookup resolves one zip; a missing zip is an UnknownLocationError.
	Lookup(ctx context.Context, zip string) (domcat.Location, error)
	// LookupMany resolves a batch; unresolved zips are absent from the map.
	LookupMany(ctx context.Context, zips []string) (map[string]domcat.Location, error)
}
