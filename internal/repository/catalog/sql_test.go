package catalog

import (
	"strings"
	"testing"

	domcat "github.com/carelens/costnav/internal/domain/catalog"
)

func TestBuildSearchSQL_NoFilters(t *testing.T) {
	sql, args := buildSearchSQL(domcat.Filter{})

	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
	if strings.Contains(sql, "WHERE") {
		t.Errorf("unexpected WHERE clause:\n%s", sql)
	}
	if !strings.Contains(sql, "ORDER BY pr.average_covered_charges ASC") {
		t.Errorf("missing covered-charges sort:\n%s", sql)
	}
}

func TestBuildSearchSQL_DRGSubstringIsParameterized(t *testing.T) {
	sql, args := buildSearchSQL(domcat.Filter{DRG: "ALCOHOL"})

	if len(args) != 1 || args[0] != "ALCOHOL" {
		t.Fatalf("expected single arg ALCOHOL, got %v", args)
	}
	if !strings.Contains(sql, "ILIKE '%' || $1 || '%'") {
		t.Errorf("substring filter not parameterized:\n%s", sql)
	}
	if strings.Contains(sql, "ALCOHOL") {
		t.Errorf("literal spliced into SQL text:\n%s", sql)
	}
}

func TestBuildSearchSQL_AllFilters(t *testing.T) {
	sql, args := buildSearchSQL(domcat.Filter{
		DRG:       "hip",
		City:      "New York",
		State:     "ny",
		MinRating: 7,
	})

	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d: %v", len(args), args)
	}
	if args[2] != "NY" {
		t.Errorf("state not uppercased: %v", args[2])
	}
	for _, placeholder := range []string{"$1", "$2", "$3", "$4"} {
		if !strings.Contains(sql, placeholder) {
			t.Errorf("missing placeholder %s:\n%s", placeholder, sql)
		}
	}
	if !strings.Contains(sql, "r.rating >= $4") {
		t.Errorf("rating filter missing or out of order:\n%s", sql)
	}
}

func TestBuildSearchSQL_LiteralNeverSpliced(t *testing.T) {
	hostile := `'; DROP TABLE providers; --`
	sql, args := buildSearchSQL(domcat.Filter{DRG: hostile, City: hostile})

	if strings.Contains(sql, "DROP TABLE") {
		t.Errorf("hostile literal appeared in SQL text:\n%s", sql)
	}
	if len(args) != 2 {
		t.Errorf("expected hostile literals as args, got %v", args)
	}
}
