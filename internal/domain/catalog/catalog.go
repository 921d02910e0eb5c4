// Package catalog holds the read-only provider pricing records served by the API.
package catalog

// Row is one provider/price record as returned by a catalog search.
// Rating is nil when the provider has no rating row. DistanceKM is set only
// when a geographic filter was applied and the provider zip resolved.
type Row struct {
	ProviderID              string
	ProviderName            string
	ProviderCity            string
	ProviderState           string
	ProviderZip             string
	ProcedureLabel          string
	TotalDischarges         int
	AverageCoveredCharges   float64
	AverageTotalPayments    float64
	AverageMedicarePayments float64
	Rating                  *int
	DistanceKM              *float64
}

// Location is a resolved zip-code coordinate pair.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Filter is the relational part of a catalog search: everything except the
// geographic radius, which is applied after zip resolution. Zero values mean
// "no constraint".
type Filter struct {
	DRG       string // case-insensitive substring of the procedure label
	City      string
	State     string
	MinRating int
}
