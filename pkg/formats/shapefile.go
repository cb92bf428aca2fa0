package formats

import (
	"os"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatShapefile, DriverName: "ESRI Shapefile", DefaultExt: ".shp",
			SingleFile: false, ReadSupported: true, WriteSupported: true,
		},
		Reader: shapefileDriver{},
		Writer: shapefileDriver{},
	})
}

type shapefileDriver struct{}

func (shapefileDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "shapefile: opening %s", path)
	}
	defer reader.Close()

	fields := reader.Fields()
	ds := &dataset.Dataset{}
	for _, f := range fields {
		ds.Fields = append(ds.Fields, dataset.Field{Name: strings.TrimRight(string(f.Name[:]), "\x00")})
	}

	for reader.Next() {
		idx, shape := reader.Shape()
		props := map[string]interface{}{}
		for i, f := range ds.Fields {
			raw := reader.ReadAttribute(idx, i)
			decoded, derr := decodeBytes([]byte(raw), encoding)
			if derr != nil {
				return nil, ReadHints{}, derr
			}
			props[f.Name] = string(decoded)
		}
		ds.Features = append(ds.Features, dataset.Feature{
			Geometry:   shpToOrb(shape),
			Properties: props,
		})
	}

	hints := ReadHints{}
	if prjWKT, ok := readSidecarPRJ(path); ok {
		hints.SidecarWKT = prjWKT
	}
	return ds, hints, nil
}

func readSidecarPRJ(shpPath string) (string, bool) {
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func shpToOrb(s shp.Shape) orb.Geometry {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}
	case *shp.PolyLine:
		return polylineToOrb(v)
	case *shp.Polygon:
		return polygonToOrb(v)
	case *shp.MultiPoint:
		out := make(orb.MultiPoint, len(v.Points))
		for i, p := range v.Points {
			out[i] = orb.Point{p.X, p.Y}
		}
		return out
	default:
		return nil
	}
}

func partRanges(parts []int32, numPoints int32) [][2]int32 {
	ranges := make([][2]int32, len(parts))
	for i, start := range parts {
		end := numPoints
		if i < len(parts)-1 {
			end = parts[i+1]
		}
		ranges[i] = [2]int32{start, end}
	}
	return ranges
}

func polylineToOrb(v *shp.PolyLine) orb.Geometry {
	ranges := partRanges(v.Parts, v.NumPoints)
	lines := make(orb.MultiLineString, 0, len(ranges))
	for _, r := range ranges {
		ls := make(orb.LineString, 0, r[1]-r[0])
		for _, p := range v.Points[r[0]:r[1]] {
			ls = append(ls, orb.Point{p.X, p.Y})
		}
		lines = append(lines, ls)
	}
	if len(lines) == 1 {
		return lines[0]
	}
	return lines
}

func polygonToOrb(v *shp.Polygon) orb.Geometry {
	ranges := partRanges(v.Parts, v.NumPoints)
	poly := make(orb.Polygon, 0, len(ranges))
	for _, r := range ranges {
		ring := make(orb.Ring, 0, r[1]-r[0])
		for _, p := range v.Points[r[0]:r[1]] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		poly = append(poly, ring)
	}
	return poly
}

func (shapefileDriver) Write(ds *dataset.Dataset, path string) error {
	shapeType := shapeTypeFor(ds)
	writer, err := shp.Create(path, shapeType)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "shapefile: creating %s", path)
	}
	defer writer.Close()

	fields := make([]shp.Field, len(ds.Fields))
	for i, f := range ds.Fields {
		switch f.Type {
		case dataset.FieldNumeric:
			fields[i] = shp.FloatField(f.Name, 19, 11)
		default:
			fields[i] = shp.StringField(f.Name, 254)
		}
	}
	writer.SetFields(fields)

	for row, feat := range ds.Features {
		n, err := writer.Write(orbToShp(feat.Geometry, shapeType))
		if err != nil {
			return geoerr.Wrap(err, geoerr.ProcessingError, "shapefile: writing geometry row %d", row)
		}
		for i, f := range ds.Fields {
			writer.WriteAttribute(n, i, stringifyValue(feat.Properties[f.Name]))
		}
	}

	if epsgWKT, ok := wktFor(ds.EPSG); ok {
		_ = os.WriteFile(strings.TrimSuffix(path, ".shp")+".prj", []byte(epsgWKT), 0o644)
	}
	return nil
}

func shapeTypeFor(ds *dataset.Dataset) shp.ShapeType {
	for _, f := range ds.Features {
		switch f.Geometry.(type) {
		case orb.Point:
			return shp.POINT
		case orb.MultiPoint:
			return shp.MULTIPOINT
		case orb.LineString, orb.MultiLineString:
			return shp.POLYLINE
		case orb.Polygon, orb.MultiPolygon:
			return shp.POLYGON
		}
	}
	return shp.POINT
}

func orbToShp(g orb.Geometry, shapeType shp.ShapeType) shp.Shape {
	switch shapeType {
	case shp.POINT:
		p, _ := g.(orb.Point)
		return &shp.Point{X: p[0], Y: p[1]}
	case shp.POLYLINE:
		return lineStringsToShp(toLines(g))
	case shp.POLYGON:
		return ringsToShp(toRings(g))
	default:
		p, _ := g.(orb.Point)
		return &shp.Point{X: p[0], Y: p[1]}
	}
}

func toLines(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return []orb.LineString(v)
	default:
		return nil
	}
}

func toRings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Ring(v)
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, p := range v {
			rings = append(rings, p...)
		}
		return rings
	default:
		return nil
	}
}

func lineStringsToShp(lines []orb.LineString) shp.Shape {
	var points []shp.Point
	var parts []int32
	for _, ls := range lines {
		parts = append(parts, int32(len(points)))
		for _, p := range ls {
			points = append(points, shp.Point{X: p[0], Y: p[1]})
		}
	}
	box := boundOf(points)
	return &shp.PolyLine{
		Box:       box,
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}

func ringsToShp(rings []orb.Ring) shp.Shape {
	var points []shp.Point
	var parts []int32
	for _, ring := range rings {
		parts = append(parts, int32(len(points)))
		for _, p := range ring {
			points = append(points, shp.Point{X: p[0], Y: p[1]})
		}
	}
	box := boundOf(points)
	return &shp.Polygon{
		Box:       box,
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}

func boundOf(points []shp.Point) shp.Box {
	if len(points) == 0 {
		return shp.Box{}
	}
	box := shp.Box{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		if p.X < box.MinX {
			box.MinX = p.X
		}
		if p.X > box.MaxX {
			box.MaxX = p.X
		}
		if p.Y < box.MinY {
			box.MinY = p.Y
		}
		if p.Y > box.MaxY {
			box.MaxY = p.Y
		}
	}
	return box
}

// wktFor returns a canned WKT1 definition for EPSG 4326, 3857 and 2154,
// enough to emit a usable .prj sidecar without a full CRS-authority
// database. Any other code reports false and no .prj is written.
func wktFor(epsg int) (string, bool) {
	wkts := map[int]string{
		4326: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`,
		3857: `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`,
		2154: `PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93",DATUM["Reseau_Geodesique_Francais_1993",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic_2SP"],UNIT["metre",1],AUTHORITY["EPSG","2154"]]`,
	}
	w, ok := wkts[epsg]
	return w, ok
}
