package conversion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/geoconvert/geoconvert/pkg/formats"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "a"}, "geometry": {"type": "Point", "coordinates": [2.35, 48.85]}},
    {"type": "Feature", "properties": {"name": "b"}, "geometry": {"type": "Point", "coordinates": [2.36, 48.86]}}
  ]
}`

func TestProcessGeoJSONToCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.geojson")
	if err := os.WriteFile(inputPath, []byte(sampleGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Process(Params{
		InputPath:      inputPath,
		OutputFormat:   formats.FormatCSV,
		FixGeometries:  true,
		NormalizeAttrs: true,
		Encoding:       formats.EncodingUTF8,
		WorkDir:        filepath.Join(dir, "work"),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.OutputFeatures != 2 {
		t.Errorf("OutputFeatures = %d, want 2", result.OutputFeatures)
	}
	if result.SourceEPSG != 4326 {
		t.Errorf("SourceEPSG = %d, want 4326 (GeoJSON is always WGS84)", result.SourceEPSG)
	}
	if result.TargetEPSG != 4326 {
		t.Errorf("TargetEPSG = %d, want 4326 (no target given, pinned to source)", result.TargetEPSG)
	}
	if _, err := os.Stat(result.ArtifactPath); err != nil {
		t.Errorf("artifact missing at %s: %v", result.ArtifactPath, err)
	}
	if result.Report.QualityScore <= 0 {
		t.Errorf("QualityScore = %d, want > 0", result.Report.QualityScore)
	}
}

func TestProcessRejectsUnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.weird")
	if err := os.WriteFile(inputPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Process(Params{
		InputPath:    inputPath,
		OutputFormat: formats.FormatGeoJSON,
		Encoding:     formats.EncodingUTF8,
		WorkDir:      filepath.Join(dir, "work"),
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized input extension")
	}
}
