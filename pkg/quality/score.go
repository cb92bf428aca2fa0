package quality

import "fmt"

// computeScore implements the weighted scoring of spec §4.5: geometry
// completeness 25, validity 25, attribute completeness 20, CRS known 15,
// type quality 15, clamped to [0, 100].
func computeScore(r Report) (int, []string) {
	score := 0
	var recs []string

	// Geometry completeness (25 pts), penalized 1 per 4% null rate.
	total := r.Geometry.Total
	if total == 0 {
		total = 1
	}
	nullRate := float64(r.Geometry.NullGeometryCount) / float64(total) * 100
	score += maxInt(0, 25-int(nullRate/4))
	if nullRate > 5 {
		recs = append(recs, fmt.Sprintf("Attention: %.1f%% null geometries detected.", nullRate))
	}

	// Geometry validity (25 pts), linear with validity rate.
	validity := r.Geometry.ValidityRate
	if r.Geometry.Total == 0 {
		validity = 100
	}
	score += int(validity / 4)
	if validity < 95 {
		recs = append(recs, fmt.Sprintf("Geometry quality: %.1f%% valid. Check the source.", validity))
	}

	// Attribute completeness (20 pts), linear with completeness rate.
	completeness := r.Attribute.CompletenessRate
	if r.Attribute.TotalColumns == 0 {
		completeness = 100
	}
	score += int(completeness / 5)
	if completeness < 80 {
		recs = append(recs, fmt.Sprintf("Low attribute completeness: %.1f%%. Missing data.", completeness))
	}

	// CRS known (15 pts).
	if r.Projection.SourceEPSG != 0 {
		score += 15
	} else {
		score += 5
		recs = append(recs, "Projection not detected. Specify the source EPSG manually.")
	}

	// Type quality (15 pts), -2 per text column with > 50 distinct values.
	typeScore := 15
	for _, cs := range r.Attribute.Columns {
		if cs.DType == "text" && cs.UniqueCount > 50 {
			typeScore -= 2
		}
	}
	score += maxInt(0, typeScore)

	return clamp(score, 0, 100), recs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
