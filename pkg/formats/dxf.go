package formats

import (
	"github.com/paulmach/orb"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/entity"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatDXF, DriverName: "DXF", DefaultExt: ".dxf",
			SingleFile: true, ReadSupported: true, WriteSupported: true,
		},
		Reader: dxfDriver{},
		Writer: dxfDriver{},
	})
}

// dxfDriver maps DXF POINT/LINE/LWPOLYLINE entities onto the dataset
// model. DXF carries no CRS of its own (spec §4.2: "DXF files rarely
// embed CRS metadata"), so Read never returns a driver hint — the
// caller falls through to the sidecar/extent tiers of the detection
// cascade.
type dxfDriver struct{}

func (dxfDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	d, err := dxf.Open(path)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "dxf: opening %s", path)
	}

	ds := &dataset.Dataset{
		Fields: []dataset.Field{{Name: "layer"}},
	}
	for _, e := range d.Entities() {
		geom, layer := dxfEntityToOrb(e)
		if geom == nil {
			continue
		}
		ds.Features = append(ds.Features, dataset.Feature{
			Geometry:   geom,
			Properties: map[string]interface{}{"layer": layer},
		})
	}
	return ds, ReadHints{}, nil
}

func dxfEntityToOrb(e entity.Entity) (orb.Geometry, string) {
	switch v := e.(type) {
	case *entity.Point:
		return orb.Point{v.Point.X, v.Point.Y}, v.Layer().Name
	case *entity.Line:
		return orb.LineString{
			{v.Start.X, v.Start.Y},
			{v.End.X, v.End.Y},
		}, v.Layer().Name
	case *entity.LwPolyline:
		ls := make(orb.LineString, 0, len(v.Vertices))
		for _, vert := range v.Vertices {
			ls = append(ls, orb.Point{vert.X, vert.Y})
		}
		return ls, v.Layer().Name
	default:
		return nil, ""
	}
}

func (dxfDriver) Write(ds *dataset.Dataset, path string) error {
	d := dxf.NewDrawing()
	for _, feat := range ds.Features {
		switch g := feat.Geometry.(type) {
		case orb.Point:
			d.Point(g[0], g[1], 0)
		case orb.LineString:
			writeDXFPolyline(d, g)
		case orb.MultiLineString:
			for _, ls := range g {
				writeDXFPolyline(d, ls)
			}
		case orb.Polygon:
			for _, ring := range g {
				writeDXFPolyline(d, orb.LineString(ring))
			}
		case orb.MultiPolygon:
			for _, p := range g {
				for _, ring := range p {
					writeDXFPolyline(d, orb.LineString(ring))
				}
			}
		}
	}
	if err := d.SaveAs(path); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "dxf: writing %s", path)
	}
	return nil
}

func writeDXFPolyline(d *dxf.Drawing, ls orb.LineString) {
	if len(ls) < 2 {
		return
	}
	for i := 0; i < len(ls)-1; i++ {
		d.Line(ls[i][0], ls[i][1], 0, ls[i+1][0], ls[i+1][1], 0)
	}
}
