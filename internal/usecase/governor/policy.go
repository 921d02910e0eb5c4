package governor

// Policy is the governor's configuration: the table/column allow-list and
// the bounds it enforces. It is passed in at construction so tests can
// substitute a restrictive or permissive policy.
type Policy struct {
	// AllowedColumns maps table name → allowed column set.
	AllowedColumns map[string]map[string]bool
	// RowCap is injected into any proposal without a limit (or with one
	// above the cap). Never a rejection.
	RowCap int
	// MaxRadiusKM bounds geographic filters.
	MaxRadiusKM float64
}

// DefaultPolicy covers exactly the documented tables and columns.
func DefaultPolicy() Policy {
	return Policy{
		AllowedColumns: map[string]map[string]bool{
			"providers": cols("provider_id", "provider_name", "provider_city",
				"provider_state", "provider_zip_code"),
			"drgs": cols("drg_id", "ms_drg_definition"),
			"drg_prices": cols("id", "provider_id", "drg_id", "total_discharges",
				"average_covered_charges", "average_total_payments", "average_medicare_payments"),
			"ratings":   cols("id", "provider_id", "rating"),
			"zip_codes": cols("zip_code", "latitude", "longitude"),
		},
		RowCap:      100,
		MaxRadiusKM: 500,
	}
}

func cols(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// tableAllowed reports whether the table is on the allow-list.
func (p Policy) tableAllowed(table string) bool {
	_, ok := p.AllowedColumns[table]
	return ok
}

// columnAllowed reports whether the column is on the allow-list for the table.
func (p Policy) columnAllowed(table, column string) bool {
	return p.AllowedColumns[table][column]
}

// capLimit clamps a requested limit to the row cap. A missing (zero) limit
// becomes the cap.
func (p Policy) capLimit(requested int) int {
	if requested <= 0 || requested > p.RowCap {
		return p.RowCap
	}
	return requested
}
