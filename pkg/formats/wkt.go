package formats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// geometryToWKT and parseWKTGeometry are a small, self-contained
// WKT codec used only by the FileGDB driver's own record format — not
// a general-purpose WKT implementation. They cover the geometry kinds
// pkg/dataset ever produces: Point, LineString, Polygon and their
// Multi- variants.
func geometryToWKT(g orb.Geometry) string {
	switch v := g.(type) {
	case orb.Point:
		return fmt.Sprintf("POINT (%s)", coordWKT(v))
	case orb.MultiPoint:
		return fmt.Sprintf("MULTIPOINT (%s)", pointsWKT(v))
	case orb.LineString:
		return fmt.Sprintf("LINESTRING (%s)", pointsWKT(v))
	case orb.MultiLineString:
		parts := make([]string, len(v))
		for i, ls := range v {
			parts[i] = "(" + pointsWKT(ls) + ")"
		}
		return fmt.Sprintf("MULTILINESTRING (%s)", strings.Join(parts, ", "))
	case orb.Polygon:
		return fmt.Sprintf("POLYGON (%s)", polygonRingsWKT(v))
	case orb.MultiPolygon:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = "(" + polygonRingsWKT(p) + ")"
		}
		return fmt.Sprintf("MULTIPOLYGON (%s)", strings.Join(parts, ", "))
	default:
		return ""
	}
}

func coordWKT(p orb.Point) string {
	return strconv.FormatFloat(p[0], 'f', -1, 64) + " " + strconv.FormatFloat(p[1], 'f', -1, 64)
}

func pointsWKT(pts []orb.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = coordWKT(p)
	}
	return strings.Join(parts, ", ")
}

func polygonRingsWKT(p orb.Polygon) string {
	parts := make([]string, len(p))
	for i, ring := range p {
		parts[i] = "(" + pointsWKT(ring) + ")"
	}
	return strings.Join(parts, ", ")
}

func parseWKTGeometry(wkt string) (orb.Geometry, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return nil, nil
	}
	upper := strings.ToUpper(wkt)
	switch {
	case strings.HasPrefix(upper, "POINT"):
		pts := parseWKTPoints(wkt, "POINT")
		if len(pts) == 0 {
			return nil, geoerr.New(geoerr.InvalidInput, "filegdb: empty POINT")
		}
		return pts[0], nil
	case strings.HasPrefix(upper, "MULTIPOINT"):
		return orb.MultiPoint(parseWKTPoints(wkt, "MULTIPOINT")), nil
	case strings.HasPrefix(upper, "LINESTRING"):
		return orb.LineString(parseWKTPoints(wkt, "LINESTRING")), nil
	case strings.HasPrefix(upper, "MULTILINESTRING"):
		rings := parseWKTRingGroups(wkt, "MULTILINESTRING")
		mls := make(orb.MultiLineString, len(rings))
		for i, r := range rings {
			mls[i] = orb.LineString(r)
		}
		return mls, nil
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		return parseWKTMultiPolygon(wkt), nil
	case strings.HasPrefix(upper, "POLYGON"):
		rings := parseWKTRingGroups(wkt, "POLYGON")
		poly := make(orb.Polygon, len(rings))
		for i, r := range rings {
			poly[i] = orb.Ring(r)
		}
		return poly, nil
	default:
		return nil, geoerr.New(geoerr.InvalidInput, "filegdb: unrecognized WKT geometry %q", wkt)
	}
}

func parseWKTPoints(wkt, tag string) []orb.Point {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(wkt), tag))
	body = strings.Trim(body, "() ")
	var out []orb.Point
	for _, pair := range strings.Split(body, ",") {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		out = append(out, orb.Point{x, y})
	}
	return out
}

// parseWKTRingGroups splits "((x y, x y), (x y, x y))" into its
// individual ring point-lists.
func parseWKTRingGroups(wkt, tag string) [][]orb.Point {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(wkt), tag))
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "(")
	body = strings.TrimSuffix(body, ")")

	var groups [][]orb.Point
	depth := 0
	start := 0
	for i, r := range body {
		switch r {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				groups = append(groups, parseWKTPoints(body[start:i], ""))
			}
		}
	}
	return groups
}

func parseWKTMultiPolygon(wkt string) orb.MultiPolygon {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(wkt), "MULTIPOLYGON"))
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "(")
	body = strings.TrimSuffix(body, ")")

	var polys orb.MultiPolygon
	depth := 0
	start := 0
	for i, r := range body {
		switch r {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				rings := parseWKTRingGroups(body[start:i+1], "")
				poly := make(orb.Polygon, len(rings))
				for j, rr := range rings {
					poly[j] = orb.Ring(rr)
				}
				polys = append(polys, poly)
			}
		}
	}
	return polys
}
