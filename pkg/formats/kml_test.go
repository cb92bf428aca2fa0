package formats

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func TestKMLRoundTrip(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "name", Type: dataset.FieldText}},
		EPSG:   4326,
		Features: []dataset.Feature{
			{Geometry: orb.Point{2.35, 48.85}, Properties: map[string]interface{}{"name": "Paris"}},
			{Geometry: orb.LineString{{0, 0}, {1, 1}}, Properties: map[string]interface{}{"name": "a line"}},
		},
	}

	path := filepath.Join(t.TempDir(), "out.kml")
	drv := kmlDriver{}
	if err := drv.Write(ds, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, hints, err := drv.Read(path, EncodingUTF8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if hints.DriverEPSG != 4326 {
		t.Errorf("DriverEPSG = %d, want 4326 (KML is always WGS84)", hints.DriverEPSG)
	}
	if len(out.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(out.Features))
	}
	if _, ok := out.Features[0].Geometry.(orb.Point); !ok {
		t.Errorf("feature 0 geometry = %T, want orb.Point", out.Features[0].Geometry)
	}
	if out.Features[0].Properties["name"] != "Paris" {
		t.Errorf("feature 0 name = %v, want Paris", out.Features[0].Properties["name"])
	}
	if ls, ok := out.Features[1].Geometry.(orb.LineString); !ok || len(ls) != 2 {
		t.Errorf("feature 1 geometry = %#v, want a 2-point LineString", out.Features[1].Geometry)
	}
}
