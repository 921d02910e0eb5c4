// Package governor validates translator proposals before anything reaches
// the database. The translator's output is untrusted structured data; this
// package is the boundary that decides what may execute.
package governor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/carelens/costnav/internal/domain"
	domq "github.com/carelens/costnav/internal/domain/query"
	searchuc "github.com/carelens/costnav/internal/usecase/search"
)

// writeVerbs matches schema-altering or mutating SQL verbs anywhere in a
// free-text field. Rejection is unconditional: the governor is read-only by
// construction.
var writeVerbs = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant)\b`)

// Authorized is the governor's verdict on an accepted proposal. Filter
// intents run through the structured search usecase (inherently
// parameterized); aggregate intents carry a fully built SafeQuery.
type Authorized struct {
	Filter    *searchuc.Params
	Aggregate *domq.SafeQuery
}

// Service authorizes proposals against a fixed policy.
type Service struct {
	policy Policy
}

// New creates a governor with the given policy.
func New(policy Policy) *Service {
	return &Service{policy: policy}
}

// Authorize applies the rules in order: allow-list, write intent, row cap,
// parameterization. Violations return an error wrapping ErrRejected whose
// detail is for logs only, never for the caller.
func (s *Service) Authorize(p domq.Proposal) (Authorized, error) {
	for _, text := range p.FreeText() {
		if writeVerbs.MatchString(text) {
			return Authorized{}, fmt.Errorf("%w: write verb in proposal field %q", domain.ErrRejected, text)
		}
	}

	switch p.Intent() {
	case domq.IntentFilter:
		return s.authorizeFilter(p.Filter())
	case domq.IntentAggregate:
		return s.authorizeAggregate(p.Aggregate())
	case domq.IntentOutOfScope:
		return Authorized{}, fmt.Errorf("%w: %w", domain.ErrRejected, domain.ErrOutOfScope)
	case domq.IntentAmbiguous:
		return Authorized{}, fmt.Errorf("%w: %w", domain.ErrRejected, domain.ErrAmbiguous)
	default:
		return Authorized{}, fmt.Errorf("%w: intent %q is not executable", domain.ErrRejected, p.Intent())
	}
}

func (s *Service) authorizeFilter(f *domq.Filter) (Authorized, error) {
	if f == nil {
		return Authorized{}, fmt.Errorf("%w: filter intent without filter body", domain.ErrRejected)
	}
	if f.RadiusKM() > s.policy.MaxRadiusKM {
		return Authorized{}, fmt.Errorf("%w: radius %.0f km exceeds policy maximum %.0f km",
			domain.ErrRejected, f.RadiusKM(), s.policy.MaxRadiusKM)
	}

	params := searchuc.Params{
		DRG:       f.DRG(),
		City:      f.City(),
		State:     f.State(),
		Zip:       f.Zip(),
		RadiusKM:  f.RadiusKM(),
		MinRating: f.MinRating(),
		Limit:     s.policy.capLimit(f.Limit()),
	}
	return Authorized{Filter: &params}, nil
}

func (s *Service) authorizeAggregate(a *domq.Aggregate) (Authorized, error) {
	if a == nil {
		return Authorized{}, fmt.Errorf("%w: aggregate intent without aggregate body", domain.ErrRejected)
	}
	if !s.policy.tableAllowed(a.Table()) {
		return Authorized{}, fmt.Errorf("%w: table %q not on allow-list", domain.ErrRejected, a.Table())
	}
	for _, col := range []string{a.Metric(), a.GroupBy()} {
		if col == "" {
			continue
		}
		if !s.columnKnown(col) {
			return Authorized{}, fmt.Errorf("%w: column %q not on allow-list", domain.ErrRejected, col)
		}
	}

	sq, err := s.buildAggregateSQL(a)
	if err != nil {
		return Authorized{}, err
	}
	return Authorized{Aggregate: &sq}, nil
}

// columnKnown reports whether the column appears on the allow-list of any table.
func (s *Service) columnKnown(column string) bool {
	for table := range s.policy.AllowedColumns {
		if s.policy.columnAllowed(table, column) {
			return true
		}
	}
	return false
}

// priceMetrics are the columns AVG may be taken over.
var priceMetrics = map[string]bool{
	"average_covered_charges":   true,
	"average_total_payments":    true,
	"average_medicare_payments": true,
}

// buildAggregateSQL renders one of the two supported aggregate templates.
// Identifiers in the SQL text are allow-list-verified above and shape-checked
// here; every literal travels as a positional argument, including the limit.
func (s *Service) buildAggregateSQL(a *domq.Aggregate) (domq.SafeQuery, error) {
	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	limit := s.policy.capLimit(a.Limit())

	switch a.Op() {
	case domq.OpCountByCity:
		if a.Table() != "providers" || a.GroupBy() != "provider_city" {
			return domq.SafeQuery{}, fmt.Errorf("%w: %s must group providers by provider_city",
				domain.ErrRejected, domq.OpCountByCity)
		}
		sb.WriteString("SELECT p.provider_city AS city, COUNT(DISTINCT p.provider_id) AS provider_count\n")
		sb.WriteString("FROM providers p\n")
		if a.State() != "" {
			fmt.Fprintf(&sb, "WHERE p.provider_state = %s\n", arg(strings.ToUpper(a.State())))
		}
		sb.WriteString("GROUP BY p.provider_city\n")
		sb.WriteString("ORDER BY provider_count DESC, city ASC\n")
		fmt.Fprintf(&sb, "LIMIT %s", arg(limit))

	case domq.OpAvgCostByGroup:
		if a.Table() != "drg_prices" || a.GroupBy() != "ms_drg_definition" {
			return domq.SafeQuery{}, fmt.Errorf("%w: %s must group drg_prices by ms_drg_definition",
				domain.ErrRejected, domq.OpAvgCostByGroup)
		}
		if !priceMetrics[a.Metric()] {
			return domq.SafeQuery{}, fmt.Errorf("%w: %q is not an averageable price column",
				domain.ErrRejected, a.Metric())
		}
		sb.WriteString("SELECT d.ms_drg_definition AS procedure_label, ")
		fmt.Fprintf(&sb, "ROUND(AVG(pr.%s), 2) AS average_cost\n", a.Metric())
		sb.WriteString("FROM drg_prices pr\nJOIN drgs d ON d.drg_id = pr.drg_id\n")
		if a.DRG() != "" {
			fmt.Fprintf(&sb, "WHERE d.ms_drg_definition ILIKE '%%' || %s || '%%'\n", arg(a.DRG()))
		}
		sb.WriteString("GROUP BY d.ms_drg_definition\n")
		sb.WriteString("ORDER BY average_cost ASC\n")
		fmt.Fprintf(&sb, "LIMIT %s", arg(limit))

	default:
		return domq.SafeQuery{}, fmt.Errorf("%w: unsupported aggregate op %q", domain.ErrRejected, a.Op())
	}

	return domq.NewSafeQuery(sb.String(), args, limit), nil
}
