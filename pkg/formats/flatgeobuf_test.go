package formats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func TestFlatGeobufRoundTrip(t *testing.T) {
	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "id", Type: dataset.FieldNumeric}},
		Features: []dataset.Feature{
			{Geometry: orb.Point{10, 20}, Properties: map[string]interface{}{"id": float64(1)}},
			{Geometry: orb.LineString{{0, 0}, {1, 1}, {2, 0}}, Properties: map[string]interface{}{"id": float64(2)}},
		},
	}

	path := filepath.Join(t.TempDir(), "out.fgb")
	drv := flatgeobufDriver{}
	if err := drv.Write(ds, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, _, err := drv.Read(path, EncodingUTF8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(out.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(out.Features))
	}
	if _, ok := out.Features[0].Geometry.(orb.Point); !ok {
		t.Errorf("feature 0 geometry = %T, want orb.Point", out.Features[0].Geometry)
	}
	if ls, ok := out.Features[1].Geometry.(orb.LineString); !ok || len(ls) != 3 {
		t.Errorf("feature 1 geometry = %#v, want a 3-point LineString", out.Features[1].Geometry)
	}
}

func TestFlatGeobufRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fgb")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	drv := flatgeobufDriver{}
	if _, _, err := drv.Read(path, EncodingUTF8); err == nil {
		t.Fatal("expected an error reading a file without the fgb1 magic")
	}
}
