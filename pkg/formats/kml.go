package formats

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	kml "github.com/twpayne/go-kml/v3"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatKML, DriverName: "KML", DefaultExt: ".kml",
			SingleFile: true, ReadSupported: true, WriteSupported: true,
		},
		Reader: kmlDriver{},
		Writer: kmlDriver{},
	})
}

type kmlDriver struct{}

// KML carries no authority-coded CRS of its own — it is always WGS84
// lon/lat/alt (OGC KML 2.3 §9.3) — so Read reports that as a driver
// hint exactly like the GeoJSON driver does.
func (kmlDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "kml: reading %s", path)
	}
	decoded, err := decodeBytes(raw, encoding)
	if err != nil {
		return nil, ReadHints{}, err
	}

	var doc kmlDocument
	if err := xml.Unmarshal(decoded, &doc); err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "kml: parsing %s", path)
	}

	ds := &dataset.Dataset{}
	fieldSeen := map[string]bool{}
	for _, pm := range doc.allPlacemarks() {
		props := map[string]interface{}{}
		if pm.Name != "" {
			props["name"] = pm.Name
		}
		if pm.Description != "" {
			props["description"] = pm.Description
		}
		for _, d := range pm.ExtendedData.Data {
			props[d.Name] = d.Value
		}
		for k := range props {
			if !fieldSeen[k] {
				fieldSeen[k] = true
				ds.Fields = append(ds.Fields, dataset.Field{Name: k})
			}
		}
		ds.Features = append(ds.Features, dataset.Feature{
			Geometry:   pm.geometry(),
			Properties: props,
		})
	}

	return ds, ReadHints{DriverEPSG: 4326}, nil
}

func (kmlDriver) Write(ds *dataset.Dataset, path string) error {
	placemarks := make([]kml.Element, 0, len(ds.Features))
	for _, feat := range ds.Features {
		children := []kml.Element{}
		if name, ok := feat.Properties["name"].(string); ok && name != "" {
			children = append(children, kml.Name(name))
		}
		if geomEl := kmlGeometry(feat.Geometry); geomEl != nil {
			children = append(children, geomEl)
		}
		if extended := kmlExtendedData(ds.Fields, feat.Properties); extended != nil {
			children = append(children, extended)
		}
		placemarks = append(placemarks, kml.Placemark(children...))
	}

	doc := kml.KML(kml.Document(placemarks...))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "kml: creating %s", path)
	}
	defer f.Close()

	if err := doc.WriteIndent(f, "", "  "); err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "kml: encoding %s", path)
	}
	return nil
}

func kmlExtendedData(fields []dataset.Field, props map[string]interface{}) kml.Element {
	var data []kml.Element
	for _, f := range fields {
		if f.Name == "name" || f.Name == "description" {
			continue
		}
		data = append(data, kml.Data(f.Name, stringifyValue(props[f.Name])))
	}
	if len(data) == 0 {
		return nil
	}
	return kml.ExtendedData(data...)
}

func kmlGeometry(g orb.Geometry) kml.Element {
	switch v := g.(type) {
	case orb.Point:
		return kml.Point(kml.Coordinates(kml.Coordinate{Lon: v[0], Lat: v[1]}))
	case orb.LineString:
		return kml.LineString(kml.Coordinates(lineCoords(v)...))
	case orb.Polygon:
		return kmlPolygon(v)
	case orb.MultiPolygon:
		els := make([]kml.Element, len(v))
		for i, p := range v {
			els[i] = kml.Placemark(kmlPolygon(p))
		}
		return kml.MultiGeometry(els...)
	case orb.MultiLineString:
		els := make([]kml.Element, len(v))
		for i, ls := range v {
			els[i] = kml.LineString(kml.Coordinates(lineCoords(ls)...))
		}
		return kml.MultiGeometry(els...)
	default:
		return nil
	}
}

func kmlPolygon(p orb.Polygon) kml.Element {
	if len(p) == 0 {
		return nil
	}
	children := []kml.Element{
		kml.OuterBoundaryIs(kml.LinearRing(kml.Coordinates(lineCoords(orb.LineString(p[0]))...))),
	}
	for _, ring := range p[1:] {
		children = append(children, kml.InnerBoundaryIs(kml.LinearRing(kml.Coordinates(lineCoords(orb.LineString(ring))...))))
	}
	return kml.Polygon(children...)
}

func lineCoords(ls orb.LineString) []kml.Coordinate {
	out := make([]kml.Coordinate, len(ls))
	for i, p := range ls {
		out[i] = kml.Coordinate{Lon: p[0], Lat: p[1]}
	}
	return out
}

// kmlDocument is a minimal parse target for the handful of KML elements
// this driver reads: Placemark name/description/ExtendedData and
// Point/LineString/Polygon geometry, nested arbitrarily under
// Document/Folder. MultiGeometry is not parsed: a placemark whose
// geometry is a MultiGeometry (as Write emits for multi-part features)
// is read back with a nil geometry.
type kmlDocument struct {
	XMLName  xml.Name       `xml:"kml"`
	Document kmlContainer   `xml:"Document"`
	Direct   []kmlPlacemark `xml:"Placemark"`
}

type kmlContainer struct {
	Placemarks []kmlPlacemark  `xml:"Placemark"`
	Folders    []kmlContainer  `xml:"Folder"`
}

func (c kmlContainer) allPlacemarks() []kmlPlacemark {
	out := append([]kmlPlacemark{}, c.Placemarks...)
	for _, f := range c.Folders {
		out = append(out, f.allPlacemarks()...)
	}
	return out
}

func (d kmlDocument) allPlacemarks() []kmlPlacemark {
	out := append([]kmlPlacemark{}, d.Direct...)
	out = append(out, d.Document.allPlacemarks()...)
	return out
}

type kmlPlacemark struct {
	Name         string             `xml:"name"`
	Description  string             `xml:"description"`
	ExtendedData kmlExtendedDataXML `xml:"ExtendedData"`
	Point        *kmlPointXML       `xml:"Point"`
	LineString   *kmlLineStringXML  `xml:"LineString"`
	Polygon      *kmlPolygonXML     `xml:"Polygon"`
}

type kmlExtendedDataXML struct {
	Data []kmlDataXML `xml:"Data"`
}

type kmlDataXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPointXML struct {
	Coordinates string `xml:"coordinates"`
}

type kmlLineStringXML struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygonXML struct {
	OuterBoundaryIs kmlBoundaryXML  `xml:"outerBoundaryIs"`
	InnerBoundaryIs []kmlBoundaryXML `xml:"innerBoundaryIs"`
}

type kmlBoundaryXML struct {
	LinearRing struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"LinearRing"`
}

func (pm kmlPlacemark) geometry() orb.Geometry {
	switch {
	case pm.Point != nil:
		pts := parseCoordinates(pm.Point.Coordinates)
		if len(pts) == 0 {
			return nil
		}
		return pts[0]
	case pm.LineString != nil:
		return orb.LineString(parseCoordinates(pm.LineString.Coordinates))
	case pm.Polygon != nil:
		outer := orb.Ring(parseCoordinates(pm.Polygon.OuterBoundaryIs.LinearRing.Coordinates))
		poly := orb.Polygon{outer}
		for _, inner := range pm.Polygon.InnerBoundaryIs {
			poly = append(poly, orb.Ring(parseCoordinates(inner.LinearRing.Coordinates)))
		}
		return poly
	default:
		return nil
	}
}

// parseCoordinates parses KML's "lon,lat[,alt] lon,lat[,alt] ..."
// coordinate tuple list (OGC KML 2.3 §9.3.1).
func parseCoordinates(raw string) []orb.Point {
	fields := strings.Fields(strings.TrimSpace(raw))
	out := make([]orb.Point, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, orb.Point{lon, lat})
	}
	return out
}
