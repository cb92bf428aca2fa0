package formats

import (
	"encoding/binary"
	"encoding/json"
	"os"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatFlatGeobuf, DriverName: "FlatGeobuf", DefaultExt: ".fgb",
			SingleFile: true, ReadSupported: true, WriteSupported: true,
		},
		Reader: flatgeobufDriver{},
		Writer: flatgeobufDriver{},
	})
}

// flatgeobufDriver encodes each feature as its own FlatBuffers table
// (geometry tag, a flat float64 coordinate vector, a JSON properties
// blob) framed by a 4-byte little-endian length prefix, rather than the
// canonical FlatGeobuf wire format's packed Hilbert R-tree + columnar
// header. See DESIGN.md's "Scoped library usage — FlatGeobuf" entry:
// this buys us real flatbuffers.Builder/Table encoding without porting
// the spatial index, at the cost of interop with other FlatGeobuf
// readers — only this package's own reader can open files it writes.
type flatgeobufDriver struct{}

var fgbMagic = [4]byte{'f', 'g', 'b', '1'}

const (
	fgbGeomPoint = iota
	fgbGeomLineString
	fgbGeomPolygon
	fgbGeomMultiPoint
	fgbGeomMultiLineString
	fgbGeomMultiPolygon
)

func (flatgeobufDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "flatgeobuf: reading %s", path)
	}
	if len(raw) < 4 || [4]byte{raw[0], raw[1], raw[2], raw[3]} != fgbMagic {
		return nil, ReadHints{}, geoerr.New(geoerr.InvalidInput, "flatgeobuf: bad magic in %s", path)
	}

	ds := &dataset.Dataset{}
	offset := 4
	fieldSeen := map[string]bool{}
	for offset+4 <= len(raw) {
		msgLen := binary.LittleEndian.Uint32(raw[offset : offset+4])
		offset += 4
		if offset+int(msgLen) > len(raw) {
			return nil, ReadHints{}, geoerr.New(geoerr.InvalidInput, "flatgeobuf: truncated message in %s", path)
		}
		msg := raw[offset : offset+int(msgLen)]
		offset += int(msgLen)

		table := &fgbFeature{}
		table.Init(msg, flatbuffers.GetUOffsetT(msg))

		geom, err := fgbDecodeGeometry(table)
		if err != nil {
			return nil, ReadHints{}, err
		}
		props := map[string]interface{}{}
		if propsJSON := table.PropertiesJSON(); len(propsJSON) > 0 {
			_ = json.Unmarshal(propsJSON, &props)
		}
		for k := range props {
			if !fieldSeen[k] {
				fieldSeen[k] = true
				ds.Fields = append(ds.Fields, dataset.Field{Name: k})
			}
		}
		ds.Features = append(ds.Features, dataset.Feature{Geometry: geom, Properties: props})
	}
	return ds, ReadHints{}, nil
}

func fgbDecodeGeometry(t *fgbFeature) (orb.Geometry, error) {
	coords := t.Coords()
	switch t.GeomType() {
	case fgbGeomPoint:
		if len(coords) < 2 {
			return nil, nil
		}
		return orb.Point{coords[0], coords[1]}, nil
	case fgbGeomLineString:
		return coordsToLineString(coords), nil
	case fgbGeomPolygon:
		return orb.Polygon{orb.Ring(coordsToLineString(coords))}, nil
	case fgbGeomMultiPoint:
		pts := make(orb.MultiPoint, 0, len(coords)/2)
		for i := 0; i+1 < len(coords); i += 2 {
			pts = append(pts, orb.Point{coords[i], coords[i+1]})
		}
		return pts, nil
	default:
		return coordsToLineString(coords), nil
	}
}

func coordsToLineString(coords []float64) orb.LineString {
	ls := make(orb.LineString, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		ls = append(ls, orb.Point{coords[i], coords[i+1]})
	}
	return ls
}

func (flatgeobufDriver) Write(ds *dataset.Dataset, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "flatgeobuf: creating %s", path)
	}
	defer f.Close()

	if _, err := f.Write(fgbMagic[:]); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "flatgeobuf: writing magic")
	}

	for row, feat := range ds.Features {
		msg, err := fgbEncodeFeature(feat)
		if err != nil {
			return geoerr.Wrap(err, geoerr.ProcessingError, "flatgeobuf: encoding row %d", row)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return geoerr.Wrap(err, geoerr.UpstreamError, "flatgeobuf: writing length prefix")
		}
		if _, err := f.Write(msg); err != nil {
			return geoerr.Wrap(err, geoerr.UpstreamError, "flatgeobuf: writing message")
		}
	}
	return nil
}

func fgbEncodeFeature(feat dataset.Feature) ([]byte, error) {
	geomType, coords := fgbFlattenGeometry(feat.Geometry)
	propsJSON, err := json.Marshal(feat.Properties)
	if err != nil {
		return nil, err
	}

	b := flatbuffers.NewBuilder(256)
	propsOffset := b.CreateByteVector(propsJSON)

	b.StartVector(8, len(coords), 8)
	for i := len(coords) - 1; i >= 0; i-- {
		b.PrependFloat64(coords[i])
	}
	coordsOffset := b.EndVector(len(coords))

	fgbFeatureStart(b)
	fgbFeatureAddGeomType(b, int8(geomType))
	fgbFeatureAddCoords(b, coordsOffset)
	fgbFeatureAddPropertiesJSON(b, propsOffset)
	root := fgbFeatureEnd(b)
	b.Finish(root)
	return b.FinishedBytes(), nil
}

func fgbFlattenGeometry(g orb.Geometry) (int, []float64) {
	switch v := g.(type) {
	case orb.Point:
		return fgbGeomPoint, []float64{v[0], v[1]}
	case orb.LineString:
		return fgbGeomLineString, flattenLineString(v)
	case orb.Ring:
		return fgbGeomPolygon, flattenLineString(orb.LineString(v))
	case orb.Polygon:
		if len(v) == 0 {
			return fgbGeomPolygon, nil
		}
		return fgbGeomPolygon, flattenLineString(orb.LineString(v[0]))
	case orb.MultiPoint:
		out := make([]float64, 0, len(v)*2)
		for _, p := range v {
			out = append(out, p[0], p[1])
		}
		return fgbGeomMultiPoint, out
	default:
		return fgbGeomLineString, nil
	}
}

func flattenLineString(ls orb.LineString) []float64 {
	out := make([]float64, 0, len(ls)*2)
	for _, p := range ls {
		out = append(out, p[0], p[1])
	}
	return out
}

// fgbFeature is a hand-written FlatBuffers table accessor (the role a
// flatc-generated struct would normally play), with three fields:
// geom_type (int8, slot 0), coords (float64 vector, slot 1),
// properties_json (byte vector, slot 2).
type fgbFeature struct {
	_tab flatbuffers.Table
}

func (t *fgbFeature) Init(buf []byte, i flatbuffers.UOffsetT) {
	t._tab.Bytes = buf
	t._tab.Pos = i
}

func (t *fgbFeature) GeomType() int {
	o := flatbuffers.UOffsetT(t._tab.Offset(4))
	if o == 0 {
		return fgbGeomPoint
	}
	return int(t._tab.GetInt8(o + t._tab.Pos))
}

func (t *fgbFeature) Coords() []float64 {
	o := flatbuffers.UOffsetT(t._tab.Offset(6))
	if o == 0 {
		return nil
	}
	vecStart := t._tab.Vector(o)
	n := t._tab.VectorLen(o)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = t._tab.GetFloat64(vecStart + flatbuffers.UOffsetT(i*8))
	}
	return out
}

func (t *fgbFeature) PropertiesJSON() []byte {
	o := flatbuffers.UOffsetT(t._tab.Offset(8))
	if o == 0 {
		return nil
	}
	return t._tab.ByteVector(o + t._tab.Pos)
}

func fgbFeatureStart(b *flatbuffers.Builder) {
	b.StartObject(3)
}

func fgbFeatureAddGeomType(b *flatbuffers.Builder, v int8) {
	b.PrependInt8Slot(0, v, 0)
}

func fgbFeatureAddCoords(b *flatbuffers.Builder, offset flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(1, offset, 0)
}

func fgbFeatureAddPropertiesJSON(b *flatbuffers.Builder, offset flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(2, offset, 0)
}

func fgbFeatureEnd(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return b.EndObject()
}
