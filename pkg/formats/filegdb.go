package formats

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatFileGDB, DriverName: "FileGDB", DefaultExt: ".gdb",
			SingleFile: false, ReadSupported: true, WriteSupported: true,
		},
		Reader: filegdbDriver{},
		Writer: filegdbDriver{},
	})
}

// filegdbDriver is a minimal stand-in for ESRI's FileGDB directory
// format. No pure-Go FileGDB implementation exists to build on (ESRI's
// own SDK is C++), so this package writes its own ".gdb" directory
// carrying one JSON-encoded layer file plus a catalog stub that mimics
// the real format's table-of-tables shape closely enough to exercise
// the same archive/packaging code path (pkg/formats.PackageDirectory).
// It can only round-trip ".gdb" directories this package itself wrote
// — it cannot read a FileGDB produced by ArcGIS or GDAL's OpenFileGDB
// driver. See DESIGN.md's "Scoped library usage — FileGDB" entry.
type filegdbDriver struct{}

const filegdbCatalogName = "a00000001.gdbtable"
const filegdbLayerName = "a00000002.gdbtable"

type filegdbLayer struct {
	EPSG    int                        `json:"epsg"`
	Fields  []dataset.Field            `json:"fields"`
	Records []filegdbRecord            `json:"records"`
}

type filegdbRecord struct {
	GeometryWKT string                 `json:"geometry_wkt,omitempty"`
	Properties  map[string]interface{} `json:"properties"`
}

func (filegdbDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	layerPath := filepath.Join(path, filegdbLayerName)
	raw, err := os.ReadFile(layerPath)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "filegdb: reading %s (only geoconvert-authored .gdb directories are supported)", layerPath)
	}

	var layer filegdbLayer
	if err := json.Unmarshal(raw, &layer); err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "filegdb: parsing %s", layerPath)
	}

	ds := &dataset.Dataset{Fields: layer.Fields, EPSG: layer.EPSG}
	for _, rec := range layer.Records {
		g, _ := parseWKTGeometry(rec.GeometryWKT)
		ds.Features = append(ds.Features, dataset.Feature{Geometry: g, Properties: rec.Properties})
	}

	hints := ReadHints{}
	if layer.EPSG != 0 {
		hints.DriverEPSG = layer.EPSG
	}
	return ds, hints, nil
}

func (filegdbDriver) Write(ds *dataset.Dataset, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "filegdb: creating %s", path)
	}

	layer := filegdbLayer{EPSG: ds.EPSG, Fields: ds.Fields}
	for _, feat := range ds.Features {
		wkt := ""
		if feat.Geometry != nil {
			wkt = geometryToWKT(feat.Geometry)
		}
		layer.Records = append(layer.Records, filegdbRecord{GeometryWKT: wkt, Properties: feat.Properties})
	}

	data, err := json.MarshalIndent(layer, "", "  ")
	if err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "filegdb: encoding layer")
	}
	if err := os.WriteFile(filepath.Join(path, filegdbLayerName), data, 0o644); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "filegdb: writing layer file")
	}

	catalog := map[string]interface{}{
		"tables": []string{filegdbLayerName},
	}
	catalogData, _ := json.MarshalIndent(catalog, "", "  ")
	if err := os.WriteFile(filepath.Join(path, filegdbCatalogName), catalogData, 0o644); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "filegdb: writing catalog file")
	}
	return nil
}
