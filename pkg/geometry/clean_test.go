package geometry

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func TestCleanDropsNullAndDuplicates(t *testing.T) {
	p := orb.Point{2.35, 48.85}
	ds := &dataset.Dataset{
		Features: []dataset.Feature{
			{Geometry: p, Properties: map[string]interface{}{"id": 1}},
			{Geometry: nil, Properties: map[string]interface{}{"id": 2}},
			{Geometry: p, Properties: map[string]interface{}{"id": 3}}, // duplicate of row 1
		},
	}

	out, stats, err := Clean(ds)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if stats.NullGeometry != 1 {
		t.Errorf("NullGeometry = %d, want 1", stats.NullGeometry)
	}
	if stats.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", stats.DuplicatesRemoved)
	}
	if stats.TotalOutput != 1 || len(out.Features) != 1 {
		t.Errorf("TotalOutput = %d, len(out.Features) = %d, want 1/1", stats.TotalOutput, len(out.Features))
	}

	// Invariant from spec §8: duplicates_removed + null_geometry +
	// unfixable + output = input.
	sum := stats.DuplicatesRemoved + stats.NullGeometry + stats.Unfixable + stats.TotalOutput
	if sum != stats.TotalInput {
		t.Errorf("invariant violated: dup(%d)+null(%d)+unfixable(%d)+out(%d) = %d, want input %d",
			stats.DuplicatesRemoved, stats.NullGeometry, stats.Unfixable, stats.TotalOutput, sum, stats.TotalInput)
	}
}

func TestCleanEmptyDataset(t *testing.T) {
	out, stats, err := Clean(&dataset.Dataset{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(out.Features) != 0 || stats.TotalOutput != 0 {
		t.Errorf("expected empty output, got %+v / %+v", out, stats)
	}
}

func TestDominantGeometryType(t *testing.T) {
	ds := &dataset.Dataset{
		Features: []dataset.Feature{
			{Geometry: orb.Point{0, 0}},
			{Geometry: orb.Point{1, 1}},
			{Geometry: orb.LineString{{0, 0}, {1, 1}}},
		},
	}
	if got := DominantGeometryType(ds); got != "Point" {
		t.Errorf("DominantGeometryType = %q, want Point", got)
	}
	if got := DominantGeometryType(&dataset.Dataset{}); got != "Unknown" {
		t.Errorf("DominantGeometryType(empty) = %q, want Unknown", got)
	}
}
