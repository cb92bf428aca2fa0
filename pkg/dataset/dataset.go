// Package dataset defines the in-memory representation every pipeline
// stage (C2–C7) passes between itself and the next: a flat table of
// features carrying one geometry and a row of typed attribute values
// each, plus a CRS tag. It plays the role the original implementation's
// GeoDataFrame played — the one currency the whole pipeline speaks.
package dataset

import (
	"github.com/paulmach/orb"
)

// FieldType is the coerced type of an attribute column, assigned by
// pkg/attrs phase 4.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldTimestamp
)

func (t FieldType) String() string {
	switch t {
	case FieldNumeric:
		return "numeric"
	case FieldTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Field describes one non-geometry column, in display order.
type Field struct {
	Name string
	Type FieldType
}

// Feature is one row: an optional geometry (nil means "null geometry")
// and a map of attribute values keyed by field name.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Clone returns a deep-enough copy of f for snapshotting (pkg/conversion
// stage 4 takes a pre-cleanup snapshot for the quality report).
func (f Feature) Clone() Feature {
	props := make(map[string]interface{}, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	return Feature{Geometry: f.Geometry, Properties: props}
}

// Dataset is the full in-memory table plus its CRS tag (EPSG 0 if unknown).
type Dataset struct {
	Fields   []Field
	Features []Feature
	EPSG     int // 0 means unknown/unset
}

// Clone returns a deep-enough copy of d, including per-feature property
// maps, but sharing geometry values (geometries are treated as
// immutable once produced by a reader or C3/C2 stage).
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	fields := make([]Field, len(d.Fields))
	copy(fields, d.Fields)
	features := make([]Feature, len(d.Features))
	for i, f := range d.Features {
		features[i] = f.Clone()
	}
	return &Dataset{Fields: fields, Features: features, EPSG: d.EPSG}
}

// BBox returns the axis-aligned bounding box of every non-nil geometry
// in d. ok is false for an empty dataset.
func (d *Dataset) BBox() (bound orb.Bound, ok bool) {
	first := true
	for _, f := range d.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if first {
			bound = b
			first = false
			continue
		}
		bound = bound.Union(b)
	}
	return bound, !first
}

// GeometryKind returns the coarse kind tag used for reporting (Point,
// LineString, Polygon, their Multi- variants, or "Unknown").
func GeometryKind(g orb.Geometry) string {
	if g == nil {
		return "Unknown"
	}
	switch g.(type) {
	case orb.Point:
		return "Point"
	case orb.MultiPoint:
		return "MultiPoint"
	case orb.LineString:
		return "LineString"
	case orb.MultiLineString:
		return "MultiLineString"
	case orb.Polygon:
		return "Polygon"
	case orb.MultiPolygon:
		return "MultiPolygon"
	case orb.Collection:
		return "GeometryCollection"
	default:
		return "Unknown"
	}
}
