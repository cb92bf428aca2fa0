package formats

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func TestFileGDBRoundTrip(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "name", Type: dataset.FieldText}},
		EPSG:   4326,
		Features: []dataset.Feature{
			{Geometry: orb.Point{2.35, 48.85}, Properties: map[string]interface{}{"name": "Paris"}},
			{Geometry: nil, Properties: map[string]interface{}{"name": "no geometry"}},
		},
	}

	dir := filepath.Join(t.TempDir(), "layer.gdb")
	drv := filegdbDriver{}
	if err := drv.Write(ds, dir); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, hints, err := drv.Read(dir, EncodingUTF8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if hints.DriverEPSG != 4326 {
		t.Errorf("DriverEPSG = %d, want 4326", hints.DriverEPSG)
	}
	if len(out.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(out.Features))
	}
	if out.Features[0].Geometry == nil {
		t.Errorf("feature 0 lost its geometry")
	}
	if out.Features[1].Geometry != nil {
		t.Errorf("feature 1 should have stayed geometry-less, got %v", out.Features[1].Geometry)
	}
	if out.Features[0].Properties["name"] != "Paris" {
		t.Errorf("Properties[name] = %v, want Paris", out.Features[0].Properties["name"])
	}
}

func TestFileGDBReadMissingDirectory(t *testing.T) {
	drv := filegdbDriver{}
	if _, _, err := drv.Read(filepath.Join(t.TempDir(), "nope.gdb"), EncodingUTF8); err == nil {
		t.Fatal("expected an error reading a nonexistent .gdb directory")
	}
}
