package geometry

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// geosContextPool amortizes geos.Context construction across calls. A
// *geos.Context is not safe for concurrent use, but since each worker
// processes exactly one job at a time (spec §5: "each worker process is
// effectively stateless beyond the lifetime of one job"), a pooled
// per-goroutine context avoids both a global lock and per-call setup
// cost.
var geosContextPool = sync.Pool{
	New: func() interface{} { return geos.NewContext() },
}

// withGEOS checks out a context, runs fn, and returns it to the pool.
func withGEOS[T any](fn func(*geos.Context) (T, error)) (T, error) {
	ctx := geosContextPool.Get().(*geos.Context)
	defer geosContextPool.Put(ctx)
	return fn(ctx)
}

func toGEOS(ctx *geos.Context, g orb.Geometry) (*geos.Geom, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.ProcessingError, "geometry: encoding WKB")
	}
	geom, err := ctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.ProcessingError, "geometry: decoding WKB into GEOS")
	}
	return geom, nil
}

func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	data, err := g.ToWKB()
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.ProcessingError, "geometry: encoding GEOS geometry to WKB")
	}
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.ProcessingError, "geometry: decoding WKB from GEOS")
	}
	return geom, nil
}

// validity reports whether g is a valid geometry and, if not, a
// human-readable reason (mirrors shapely.explain_validity in the
// original).
func validity(g orb.Geometry) (valid bool, reason string, err error) {
	type result struct {
		valid  bool
		reason string
	}
	r, err := withGEOS(func(ctx *geos.Context) (result, error) {
		geom, err := toGEOS(ctx, g)
		if err != nil {
			return result{}, err
		}
		if geom.IsValid() {
			return result{valid: true}, nil
		}
		return result{valid: false, reason: geom.IsValidReason()}, nil
	})
	if err != nil {
		return false, "", err
	}
	return r.valid, r.reason, nil
}

// makeValid repairs an invalid geometry using GEOS's industry-standard
// make-valid algorithm (edge-intersection elimination and ring repair).
// Returns (nil, nil) when the repair result is empty — callers treat
// that as unfixable.
func makeValid(g orb.Geometry) (orb.Geometry, error) {
	return withGEOS(func(ctx *geos.Context) (orb.Geometry, error) {
		geom, err := toGEOS(ctx, g)
		if err != nil {
			return nil, err
		}
		fixed := geom.MakeValid()
		if fixed == nil || fixed.IsEmpty() {
			return nil, nil
		}
		return fromGEOS(fixed)
	})
}

// Centroid returns the geometric centroid of g, used by the CSV writer
// (spec §4.6) to populate the latitude/longitude columns it substitutes
// for a geometry column.
func Centroid(g orb.Geometry) (orb.Point, error) {
	return withGEOS(func(ctx *geos.Context) (orb.Point, error) {
		geom, err := toGEOS(ctx, g)
		if err != nil {
			return orb.Point{}, err
		}
		c := geom.Centroid()
		if c == nil {
			return orb.Point{}, geoerr.New(geoerr.ProcessingError, "geometry: centroid of empty geometry")
		}
		cg, err := fromGEOS(c)
		if err != nil {
			return orb.Point{}, err
		}
		p, ok := cg.(orb.Point)
		if !ok {
			return orb.Point{}, geoerr.New(geoerr.ProcessingError, "geometry: centroid did not decode to a point")
		}
		return p, nil
	})
}

// wkbBytes returns the canonical WKB encoding of g, used for byte-equal
// deduplication (spec §4.3 phase 5).
func wkbBytes(g orb.Geometry) ([]byte, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.ProcessingError, "geometry: encoding WKB for dedup")
	}
	return data, nil
}
