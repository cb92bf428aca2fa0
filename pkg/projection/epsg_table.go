package projection

import "github.com/paulmach/orb"

// crsBBox is one entry of the built-in extent-heuristic table (spec
// §4.2 tier 3), grounded on the original's KNOWN_CRS_BBOXES.
type crsBBox struct {
	EPSG int
	Box  orb.Bound
}

// knownBBoxes must include at least the EPSG codes named by spec §4.2:
// 4326, 3857, 2154, 4171, 27700, 25831, 25832, 32631, 32632.
var knownBBoxes = []crsBBox{
	{4326, orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}},
	{2154, orb.Bound{Min: orb.Point{99220, 6049997}, Max: orb.Point{1242456, 7110480}}},
	{3857, orb.Bound{Min: orb.Point{-20037508, -20048966}, Max: orb.Point{20037508, 20048966}}},
	{4171, orb.Bound{Min: orb.Point{-5.14, 41.33}, Max: orb.Point{9.56, 51.09}}},
	{32631, orb.Bound{Min: orb.Point{166022, 0}, Max: orb.Point{833978, 9329005}}},
	{32632, orb.Bound{Min: orb.Point{166022, 0}, Max: orb.Point{833978, 9329005}}},
	{27700, orb.Bound{Min: orb.Point{-103976, -16703}, Max: orb.Point{652897, 1199848}}},
	{25831, orb.Bound{Min: orb.Point{119303, 1116915}, Max: orb.Point{1320416, 9554469}}},
	{25832, orb.Bound{Min: orb.Point{243900, 1116915}, Max: orb.Point{1783532, 9554469}}},
}

func boxArea(b orb.Bound) float64 {
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}

func boxContains(outer, inner orb.Bound) bool {
	return outer.Min[0] <= inner.Min[0] && inner.Max[0] <= outer.Max[0] &&
		outer.Min[1] <= inner.Min[1] && inner.Max[1] <= outer.Max[1]
}

// bestFit returns the EPSG of the smallest-area known bbox that contains
// data, or 0 if none does.
func bestFit(data orb.Bound) int {
	best := 0
	bestArea := -1.0
	for _, c := range knownBBoxes {
		if !boxContains(c.Box, data) {
			continue
		}
		a := boxArea(c.Box)
		if bestArea < 0 || a < bestArea {
			bestArea = a
			best = c.EPSG
		}
	}
	return best
}
