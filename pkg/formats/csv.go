// CSV is read/written with stdlib encoding/csv directly — see
// DESIGN.md's "Stdlib-only justification" for why no pack or ecosystem
// library adds value over it for a flat columnar format.
package formats

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
	"github.com/geoconvert/geoconvert/pkg/geometry"
)

func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatCSV, DriverName: "CSV", DefaultExt: ".csv",
			SingleFile: true, ReadSupported: true, WriteSupported: true,
		},
		Reader: csvDriver{},
		Writer: csvDriver{},
	})
}

type csvDriver struct{}

// candidateLonLatPairs lists the column-name pairs recognized as a
// coordinate pair, tried in order (spec §6: "CSV with a recognized
// coordinate pair").
var candidateLonLatPairs = [][2]string{
	{"longitude", "latitude"},
	{"lon", "lat"},
	{"lng", "lat"},
	{"x", "y"},
}

func (csvDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "csv: reading %s", path)
	}
	decoded, err := decodeBytes(raw, encoding)
	if err != nil {
		return nil, ReadHints{}, err
	}

	r := csv.NewReader(newByteReader(decoded))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "csv: parsing %s", path)
	}
	if len(rows) == 0 {
		return &dataset.Dataset{}, ReadHints{}, nil
	}
	header := rows[0]

	lonIdx, latIdx := -1, -1
	for _, pair := range candidateLonLatPairs {
		li := indexOf(header, pair[0])
		ai := indexOf(header, pair[1])
		if li >= 0 && ai >= 0 {
			lonIdx, latIdx = li, ai
			break
		}
	}
	if lonIdx < 0 {
		return nil, ReadHints{}, geoerr.New(geoerr.InvalidInput, "csv: %s has no recognized coordinate-pair columns", path)
	}

	ds := &dataset.Dataset{}
	for i, name := range header {
		if i == lonIdx || i == latIdx {
			continue
		}
		ds.Fields = append(ds.Fields, dataset.Field{Name: name})
	}

	for _, row := range rows[1:] {
		props := map[string]interface{}{}
		for i, name := range header {
			if i == lonIdx || i == latIdx || i >= len(row) {
				continue
			}
			props[name] = row[i]
		}
		var geom orb.Geometry
		if lonIdx < len(row) && latIdx < len(row) {
			lon, errLon := strconv.ParseFloat(row[lonIdx], 64)
			lat, errLat := strconv.ParseFloat(row[latIdx], 64)
			if errLon == nil && errLat == nil {
				geom = orb.Point{lon, lat}
			}
		}
		ds.Features = append(ds.Features, dataset.Feature{Geometry: geom, Properties: props})
	}

	return ds, ReadHints{}, nil
}

// Write emits ds with no geometry column but gains latitude/longitude
// centroid columns, exactly as spec §4.6 requires.
func (csvDriver) Write(ds *dataset.Dataset, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "csv: creating %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := make([]string, 0, len(ds.Fields)+2)
	for _, field := range ds.Fields {
		header = append(header, field.Name)
	}
	header = append(header, "latitude", "longitude")
	if err := w.Write(header); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "csv: writing header")
	}

	for _, feat := range ds.Features {
		row := make([]string, 0, len(header))
		for _, field := range ds.Fields {
			row = append(row, stringifyValue(feat.Properties[field.Name]))
		}
		lat, lon := "", ""
		if feat.Geometry != nil {
			if c, err := geometry.Centroid(feat.Geometry); err == nil {
				lat = strconv.FormatFloat(c[1], 'f', -1, 64)
				lon = strconv.FormatFloat(c[0], 'f', -1, 64)
			}
		}
		row = append(row, lat, lon)
		if err := w.Write(row); err != nil {
			return geoerr.Wrap(err, geoerr.UpstreamError, "csv: writing row")
		}
	}
	return w.Error()
}

func stringifyValue(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if equalFoldASCII(h, name) {
			return i
		}
	}
	return -1
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
