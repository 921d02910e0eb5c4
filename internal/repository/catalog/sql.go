package catalog

import (
	"fmt"
	"strings"

	domcat "github.com/carelens/costnav/internal/domain/catalog"
)

const searchSelect = `SELECT p.provider_id, p.provider_name, p.provider_city, p.provider_state,
	p.provider_zip_code, d.ms_drg_definition, pr.total_discharges,
	pr.average_covered_charges, pr.average_total_payments, pr.average_medicare_payments,
	r.rating
FROM providers p
JOIN drg_prices pr ON pr.provider_id = p.provider_id
JOIN drgs d ON d.drg_id = pr.drg_id
LEFT JOIN ratings r ON r.provider_id = p.provider_id`

// buildSearchSQL renders the catalog search statement. All filter values are
// positional arguments; the substring filter is a parameterized ILIKE pattern.
func buildSearchSQL(f domcat.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.DRG != "" {
		conds = append(conds, fmt.Sprintf("d.ms_drg_definition ILIKE '%%' || %s || '%%'", arg(f.DRG)))
	}
	if f.City != "" {
		conds = append(conds, fmt.Sprintf("p.provider_city ILIKE %s", arg(f.City)))
	}
	if f.State != "" {
		conds = append(conds, fmt.Sprintf("p.provider_state = %s", arg(strings.ToUpper(f.State))))
	}
	if f.MinRating > 0 {
		conds = append(conds, fmt.Sprintf("r.rating >= %s", arg(f.MinRating)))
	}

	sql := searchSelect
	if len(conds) > 0 {
		sql += "\nWHERE " + strings.Join(conds, " AND ")
	}
	sql += "\nORDER BY pr.average_covered_charges ASC"

	return sql, args
}
