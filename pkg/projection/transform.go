package projection

import (
	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// coordTransform maps one (x, y) pair from the source to the target CRS.
type coordTransform func(x, y float64) (float64, float64)

// newTransformer builds a coordTransform between two EPSG codes using
// wgs84's CRS registry, which covers every code in the spec's built-in
// extent table (geographic, Web Mercator, UTM and national grids) without
// requiring a PROJ/GEOS cgo dependency.
func newTransformer(sourceEPSG, targetEPSG int) (coordTransform, error) {
	from := wgs84.EPSG(sourceEPSG)
	to := wgs84.EPSG(targetEPSG)
	transform := wgs84.Transform(from, to)

	return func(x, y float64) (float64, float64) {
		nx, ny, _ := transform.To(x, y, 0)
		return nx, ny
	}, nil
}

// transformGeometry returns a copy of g with every coordinate run
// through tr. orb's concrete geometry types are plain slices/structs of
// orb.Point, so this walks each variant explicitly.
func transformGeometry(g orb.Geometry, tr coordTransform) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return transformPoint(v, tr)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(v))
		for i, p := range v {
			out[i] = transformPoint(p, tr)
		}
		return out
	case orb.LineString:
		return transformLineString(v, tr)
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = transformLineString(ls, tr)
		}
		return out
	case orb.Ring:
		return orb.Ring(transformLineString(orb.LineString(v), tr))
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, ring := range v {
			out[i] = orb.Ring(transformLineString(orb.LineString(ring), tr))
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, poly := range v {
			out[i] = transformGeometry(poly, tr).(orb.Polygon)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(v))
		for i, sub := range v {
			out[i] = transformGeometry(sub, tr)
		}
		return out
	default:
		return g
	}
}

func transformPoint(p orb.Point, tr coordTransform) orb.Point {
	x, y := tr(p[0], p[1])
	return orb.Point{x, y}
}

func transformLineString(ls orb.LineString, tr coordTransform) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[i] = transformPoint(p, tr)
	}
	return out
}
