package projection

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func TestDetectDriverWins(t *testing.T) {
	d := Detect(Hints{DriverEPSG: 4326, DriverWKT: "GEOGCS-ish"})
	if d.EPSG != 4326 || d.Confidence != ConfidenceHigh || d.Method != MethodDriver {
		t.Errorf("got %+v", d)
	}
}

func TestDetectSidecarFallback(t *testing.T) {
	wkt := `PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93",AUTHORITY["EPSG","4171"]],AUTHORITY["EPSG","2154"]]`
	d := Detect(Hints{SidecarWKT: wkt})
	if d.EPSG != 2154 || d.Confidence != ConfidenceHigh || d.Method != MethodSidecar {
		t.Errorf("got %+v, want epsg=2154 high/sidecar", d)
	}
}

func TestDetectExtentHeuristicLambert93(t *testing.T) {
	// A bbox entirely inside the Lambert-93 envelope but not inside any
	// smaller known bbox (spec E2E scenario 3).
	ds := &dataset.Dataset{
		Features: []dataset.Feature{
			{Geometry: orb.Point{700000, 6600000}},
			{Geometry: orb.Point{750000, 6650000}},
		},
	}
	d := Detect(Hints{Sample: ds})
	if d.EPSG != 2154 || d.Confidence != ConfidenceMedium || d.Method != MethodExtent {
		t.Errorf("got %+v, want epsg=2154 medium/extent", d)
	}
}

func TestDetectNoCandidateContains(t *testing.T) {
	ds := &dataset.Dataset{
		Features: []dataset.Feature{
			{Geometry: orb.Point{1e9, 1e9}},
		},
	}
	d := Detect(Hints{Sample: ds})
	if d.EPSG != 0 || d.Confidence != ConfidenceLow {
		t.Errorf("got %+v, want epsg=0 low", d)
	}
}

func TestReprojectNoOpWhenEqual(t *testing.T) {
	ds := &dataset.Dataset{
		EPSG: 4326,
		Features: []dataset.Feature{
			{Geometry: orb.Point{2.35, 48.85}},
		},
	}
	if err := Reproject(ds, 4326); err != nil {
		t.Fatalf("Reproject: %v", err)
	}
	if ds.Features[0].Geometry.(orb.Point) != (orb.Point{2.35, 48.85}) {
		t.Errorf("geometry mutated on no-op reproject: %v", ds.Features[0].Geometry)
	}
}

func TestReprojectRejectsUnknownSource(t *testing.T) {
	ds := &dataset.Dataset{Features: []dataset.Feature{{Geometry: orb.Point{0, 0}}}}
	if err := Reproject(ds, 3857); err == nil {
		t.Fatal("expected error reprojecting from unknown source CRS")
	}
}
