// Package projection implements C2: resolving a dataset's source CRS via
// an ordered cascade (driver metadata → sidecar → extent heuristic) and
// reprojecting a dataset's geometries to a target EPSG.
package projection

import (
	"regexp"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Method string

const (
	MethodDriver Method = "driver"
	MethodSidecar Method = "sidecar"
	MethodExtent  Method = "extent"
	MethodNone    Method = "none"
)

// Detection is the result of Detect.
type Detection struct {
	EPSG       int
	WKT        string
	Confidence Confidence
	Method     Method
}

// Hints carries everything the C6 driver layer was able to learn about a
// file's CRS before C2 is asked to resolve it, plus a feature sample for
// the extent fallback.
type Hints struct {
	// DriverEPSG/DriverWKT come from the format driver's own metadata
	// query (tier 1). DriverEPSG is 0 when the driver found nothing.
	DriverEPSG int
	DriverWKT  string

	// SidecarWKT is the contents of a shapefile's sibling .prj file, or
	// empty if no sidecar exists (tier 2).
	SidecarWKT string

	// Sample is used for the tier-3 extent heuristic: the first up to
	// 100 features read from the dataset.
	Sample *dataset.Dataset
}

// Detect resolves a dataset's CRS using the three-tier cascade of spec
// §4.2; the first tier to produce a hit wins.
func Detect(hints Hints) Detection {
	if hints.DriverEPSG != 0 {
		return Detection{EPSG: hints.DriverEPSG, WKT: hints.DriverWKT, Confidence: ConfidenceHigh, Method: MethodDriver}
	}

	if hints.SidecarWKT != "" {
		if epsg, ok := epsgFromWKT(hints.SidecarWKT); ok {
			return Detection{EPSG: epsg, WKT: hints.SidecarWKT, Confidence: ConfidenceHigh, Method: MethodSidecar}
		}
	}

	if hints.Sample != nil {
		if bbox, ok := hints.Sample.BBox(); ok {
			if epsg := bestFit(bbox); epsg != 0 {
				return Detection{EPSG: epsg, Confidence: ConfidenceMedium, Method: MethodExtent}
			}
		}
	}

	return Detection{Confidence: ConfidenceLow, Method: MethodNone}
}

// authorityCodeRE matches an EPSG authority clause embedded in a WKT1
// CRS definition, e.g. AUTHORITY["EPSG","2154"]. A WKT string may embed
// more than one (GEOGCS base + PROJCS outer); the outer (last) match is
// the one that identifies the full CRS, mirroring OSR's
// AutoIdentifyEPSG behavior for the common case.
var authorityCodeRE = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"(\d+)"\s*\]`)

func epsgFromWKT(wkt string) (int, bool) {
	matches := authorityCodeRE.FindAllStringSubmatch(wkt, -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]
	epsg := 0
	for _, c := range last[1] {
		if c < '0' || c > '9' {
			return 0, false
		}
		epsg = epsg*10 + int(c-'0')
	}
	return epsg, epsg > 0
}

// Reproject transforms every geometry in ds from ds.EPSG to targetEPSG
// in place. No-op when they are equal. Returns InvalidInput if ds.EPSG
// is unset — callers (C7) are responsible for pinning an override source
// CRS first via SetCRS.
func Reproject(ds *dataset.Dataset, targetEPSG int) error {
	if ds.EPSG == 0 {
		return geoerr.New(geoerr.InvalidInput, "projection: cannot reproject a dataset with unknown source CRS")
	}
	if ds.EPSG == targetEPSG {
		return nil
	}
	tr, err := newTransformer(ds.EPSG, targetEPSG)
	if err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "projection: building transform %d->%d", ds.EPSG, targetEPSG)
	}
	for i := range ds.Features {
		if ds.Features[i].Geometry == nil {
			continue
		}
		ds.Features[i].Geometry = transformGeometry(ds.Features[i].Geometry, tr)
	}
	ds.EPSG = targetEPSG
	return nil
}

// SetCRS overrides ds's CRS without transforming any coordinate — used
// by C7 stage 7 when no target EPSG was requested but a source was
// detected ("pin the dataset's CRS to the source").
func SetCRS(ds *dataset.Dataset, epsg int) {
	ds.EPSG = epsg
}
