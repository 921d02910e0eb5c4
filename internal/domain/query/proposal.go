// Package query models the structured intents a translated question can
// propose. The translator only ever produces a Proposal; nothing in this
// package executes anything. Table and column names carried here are
// untrusted until the governor checks them against its allow-list.
package query

import (
	"fmt"
	"regexp"
)

// Intent tags the proposal variant.
type Intent string

const (
	// IntentFilter is a row-returning search over the pricing catalog.
	IntentFilter Intent = "filter"
	// IntentAggregate is one of the small set of supported aggregate shapes.
	IntentAggregate Intent = "aggregate"
	// IntentOutOfScope marks a question unrelated to providers, prices, or ratings.
	IntentOutOfScope Intent = "out_of_scope"
	// IntentAmbiguous marks an on-topic question the schema cannot answer.
	IntentAmbiguous Intent = "ambiguous"
)

// AggregateOp enumerates the supported aggregate shapes.
type AggregateOp string

const (
	// OpCountByCity counts providers grouped by city.
	OpCountByCity AggregateOp = "count_by_city"
	// OpAvgCostByGroup averages a price column grouped by procedure label.
	OpAvgCostByGroup AggregateOp = "avg_cost_by_group"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// ValidZip reports whether s is a well-formed 5-digit zip code.
func ValidZip(s string) bool { return zipPattern.MatchString(s) }

// Filter is the row-returning search vocabulary: the same filters the
// structured search endpoint accepts, plus optional city/state/rating scope.
type Filter struct {
	drg       string
	city      string
	state     string
	zip       string
	radiusKM  float64
	minRating int
	limit     int
}

// NewFilter validates and creates a filter specification.
func NewFilter(drg, city, state, zip string, radiusKM float64, minRating, limit int) (Filter, error) {
	if state != "" && len(state) != 2 {
		return Filter{}, fmt.Errorf("state must be a 2-letter code, got %q", state)
	}
	if zip != "" && !ValidZip(zip) {
		return Filter{}, fmt.Errorf("zip must be 5 digits, got %q", zip)
	}
	if radiusKM < 0 {
		return Filter{}, fmt.Errorf("radius_km must not be negative, got %v", radiusKM)
	}
	if (zip == "") != (radiusKM == 0) {
		return Filter{}, fmt.Errorf("zip and radius_km must be supplied together")
	}
	if minRating < 0 || minRating > 10 {
		return Filter{}, fmt.Errorf("min_rating must be between 0 and 10, got %d", minRating)
	}
	if limit < 0 {
		return Filter{}, fmt.Errorf("limit must not be negative, got %d", limit)
	}
	return Filter{
		drg: drg, city: city, state: state, zip: zip,
		radiusKM: radiusKM, minRating: minRating, limit: limit,
	}, nil
}

// DRG returns the procedure-label substring filter.
func (f Filter) DRG() string { return f.drg }

// City returns the city filter.
func (f Filter) City() string { return f.city }

// State returns the 2-letter state filter.
func (f Filter) State() string { return f.state }

// Zip returns the geographic origin zip code.
func (f Filter) Zip() string { return f.zip }

// RadiusKM returns the geographic radius.
func (f Filter) RadiusKM() float64 { return f.radiusKM }

// MinRating returns the minimum provider rating (0 = no constraint).
func (f Filter) MinRating() int { return f.minRating }

// Limit returns the requested row limit (0 = unspecified).
func (f Filter) Limit() int { return f.limit }

// Aggregate is one of the supported aggregate shapes. Table, metric, and
// group-by column names come from the translator and must pass the governor's
// allow-list before they appear anywhere near SQL.
type Aggregate struct {
	op      AggregateOp
	table   string
	metric  string
	groupBy string
	drg     string
	state   string
	limit   int
}

// NewAggregate validates and creates an aggregate specification.
func NewAggregate(op AggregateOp, table, metric, groupBy, drg, state string, limit int) (Aggregate, error) {
	switch op {
	case OpCountByCity, OpAvgCostByGroup:
	default:
		return Aggregate{}, fmt.Errorf("unsupported aggregate op %q", op)
	}
	if table == "" {
		return Aggregate{}, fmt.Errorf("aggregate table is required")
	}
	if groupBy == "" {
		return Aggregate{}, fmt.Errorf("aggregate group-by column is required")
	}
	if op == OpAvgCostByGroup && metric == "" {
		return Aggregate{}, fmt.Errorf("metric column is required for %s", OpAvgCostByGroup)
	}
	if state != "" && len(state) != 2 {
		return Aggregate{}, fmt.Errorf("state must be a 2-letter code, got %q", state)
	}
	if limit < 0 {
		return Aggregate{}, fmt.Errorf("limit must not be negative, got %d", limit)
	}
	return Aggregate{
		op: op, table: table, metric: metric, groupBy: groupBy,
		drg: drg, state: state, limit: limit,
	}, nil
}

// Op returns the aggregate shape.
func (a Aggregate) Op() AggregateOp { return a.op }

// Table returns the proposed target table.
func (a Aggregate) Table() string { return a.table }

// Metric returns the proposed metric column (empty for counts).
func (a Aggregate) Metric() string { return a.metric }

// GroupBy returns the proposed group-by column.
func (a Aggregate) GroupBy() string { return a.groupBy }

// DRG returns the procedure-label substring scope.
func (a Aggregate) DRG() string { return a.drg }

// State returns the 2-letter state scope.
func (a Aggregate) State() string { return a.state }

// Limit returns the requested group limit (0 = unspecified).
func (a Aggregate) Limit() int { return a.limit }

// Proposal is the tagged outcome of translating a question. Exactly one of
// the variant accessors is meaningful for a given intent.
type Proposal struct {
	intent    Intent
	filter    *Filter
	aggregate *Aggregate
	note      string
}

// NewFilterProposal wraps a filter spec as a proposal.
func NewFilterProposal(f Filter) Proposal {
	return Proposal{intent: IntentFilter, filter: &f}
}

// NewAggregateProposal wraps an aggregate spec as a proposal.
func NewAggregateProposal(a Aggregate) Proposal {
	return Proposal{intent: IntentAggregate, aggregate: &a}
}

// NewOutOfScope creates a terminal out-of-scope proposal.
func NewOutOfScope(note string) Proposal {
	return Proposal{intent: IntentOutOfScope, note: note}
}

// NewAmbiguous creates a terminal ambiguous proposal with an explanation.
func NewAmbiguous(note string) Proposal {
	return Proposal{intent: IntentAmbiguous, note: note}
}

// Intent returns the proposal tag.
func (p Proposal) Intent() Intent { return p.intent }

// Filter returns the filter spec (nil unless IntentFilter).
func (p Proposal) Filter() *Filter { return p.filter }

// Aggregate returns the aggregate spec (nil unless IntentAggregate).
func (p Proposal) Aggregate() *Aggregate { return p.aggregate }

// Note returns the translator's user-facing explanation for terminal intents.
func (p Proposal) Note() string { return p.note }

// FreeText returns every free-text field of the proposal, for write-intent
// scanning by the governor.
func (p Proposal) FreeText() []string {
	var out []string
	if p.filter != nil {
		out = append(out, p.filter.drg, p.filter.city, p.filter.state, p.filter.zip)
	}
	if p.aggregate != nil {
		out = append(out, p.aggregate.table, p.aggregate.metric, p.aggregate.groupBy,
			p.aggregate.drg, p.aggregate.state)
	}
	if p.note != "" {
		out = append(out, p.note)
	}
	return out
}
