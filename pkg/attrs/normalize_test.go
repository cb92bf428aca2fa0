package attrs

import (
	"regexp"
	"testing"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

var columnNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func TestCleanColumnNameASCIIFold(t *testing.T) {
	got := cleanColumnName("Nom é Commune", "")
	if got != "nom_e_commune" {
		t.Errorf("cleanColumnName = %q, want nom_e_commune", got)
	}
}

func TestCleanColumnNameDigitPrefix(t *testing.T) {
	got := cleanColumnName("2024_total", "")
	if got != "col_2024_total" {
		t.Errorf("cleanColumnName = %q, want col_2024_total", got)
	}
}

func TestCleanColumnNameEmpty(t *testing.T) {
	if got := cleanColumnName("___", ""); got != "col" {
		t.Errorf("cleanColumnName = %q, want col", got)
	}
}

func TestNormalizeCollisionSuffixFitsShapefileLimit(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "Population Totale"}, {Name: "population_t"}},
		Features: []dataset.Feature{
			{Properties: map[string]interface{}{"Population Totale": "100", "population_t": "200"}},
		},
	}
	out, stats := Normalize(ds, FormatShapefile)

	for _, f := range out.Fields {
		if len(f.Name) > 10 {
			t.Errorf("field %q exceeds 10 chars after shapefile normalization", f.Name)
		}
		if !columnNameRE.MatchString(f.Name) {
			t.Errorf("field %q does not match required column-name pattern", f.Name)
		}
	}
	seen := map[string]bool{}
	for _, f := range out.Fields {
		if seen[f.Name] {
			t.Errorf("duplicate field name %q after normalization", f.Name)
		}
		seen[f.Name] = true
	}
	if len(stats.ColumnsRenamed) == 0 {
		t.Error("expected at least one renamed column")
	}
}

func TestNormalizeDropsGhostColumns(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "OBJECTID"}, {Name: "nom"}},
		Features: []dataset.Feature{
			{Properties: map[string]interface{}{"OBJECTID": "1", "nom": "Paris"}},
		},
	}
	out, stats := Normalize(ds, "")
	if len(out.Fields) != 1 || out.Fields[0].Name != "nom" {
		t.Errorf("expected only 'nom' to survive, got %+v", out.Fields)
	}
	if len(stats.ColumnsDropped) != 1 {
		t.Errorf("expected one dropped column, got %v", stats.ColumnsDropped)
	}
}

func TestNormalizeTypeCoercionAndNullTokens(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "population"}, {Name: "label"}},
		Features: []dataset.Feature{
			{Properties: map[string]interface{}{"population": "1000", "label": "N/A"}},
			{Properties: map[string]interface{}{"population": "2000", "label": "Paris"}},
		},
	}
	out, stats := Normalize(ds, "")

	if stats.TypeConversions["population"] != dataset.FieldNumeric {
		t.Errorf("expected population to coerce to numeric, got %v", stats.TypeConversions["population"])
	}
	if v := out.Features[0].Properties["population"]; v != 1000.0 {
		t.Errorf("population[0] = %v, want 1000.0", v)
	}
	if v := out.Features[0].Properties["label"]; v != nil {
		t.Errorf("label[0] = %v, want nil (standardized null token)", v)
	}
	if stats.NullValuesStandardized != 1 {
		t.Errorf("NullValuesStandardized = %d, want 1", stats.NullValuesStandardized)
	}
}

// A GeoJSON reader decodes numeric properties straight to float64 via
// encoding/json, never a string. inferType must still detect these as
// numeric instead of short-circuiting to text on the type mismatch.
func TestNormalizeRecognizesAlreadyNumericValues(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "population"}},
		Features: []dataset.Feature{
			{Properties: map[string]interface{}{"population": 1000.0}},
			{Properties: map[string]interface{}{"population": 2000.0}},
		},
	}
	out, stats := Normalize(ds, "")

	if stats.TypeConversions["population"] != dataset.FieldNumeric {
		t.Errorf("expected population to be recognized as numeric, got %v", stats.TypeConversions["population"])
	}
	if out.Fields[0].Type != dataset.FieldNumeric {
		t.Errorf("out.Fields[0].Type = %v, want FieldNumeric", out.Fields[0].Type)
	}
	if v := out.Features[0].Properties["population"]; v != 1000.0 {
		t.Errorf("population[0] = %v, want 1000.0 preserved", v)
	}
}
