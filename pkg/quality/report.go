// Package quality implements C5: composing the structured quality
// report (summary, geometry/attribute quality, projection, distribution)
// and the weighted 0-100 score, grounded on the original QualityReporter.
package quality

import (
	"time"

	"github.com/paulmach/orb/planar"

	"github.com/geoconvert/geoconvert/pkg/attrs"
	"github.com/geoconvert/geoconvert/pkg/dataset"
	"github.com/geoconvert/geoconvert/pkg/geometry"
	"github.com/geoconvert/geoconvert/pkg/projection"
)

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

type Summary struct {
	FeaturesInput  int
	FeaturesOutput int
	FeaturesLost   int
	ColumnsInput   int
	ColumnsOutput  int
	GeometryType   string
	BBox           *[4]float64
}

type GeometrySection struct {
	Total               int
	ValidCount          int
	InvalidCount        int
	ValidityRate        float64
	NullGeometryCount   int
	EmptyGeometryCount  int
	DuplicatesRemoved   int
	ErrorsFound         int
	ErrorsFixed         int
	Unfixable           int
	ErrorSample         []geometry.ErrorSample
}

type ColumnStats struct {
	DType       string
	NullCount   int
	NullRate    float64
	UniqueCount int
	Min, Max, Mean *float64
}

type AttributeSection struct {
	Columns                map[string]ColumnStats
	TotalColumns           int
	CompletenessRate       float64
	ColumnsRenamed         map[string]string
	ColumnsDropped         []string
	TypeConversions        map[string]dataset.FieldType
	NullValuesStandardized int
}

type ProjectionSection struct {
	SourceEPSG  int
	TargetEPSG  int
	Reprojected bool
}

type DistributionSection struct {
	BBox           *[4]float64
	AreaKM2        *float64
	FeatureDensity *float64
}

// Report is the full document produced by Generate, immutable once
// attached to a job row (spec §3).
type Report struct {
	GeneratedAt           time.Time
	ProcessingTimeSeconds float64
	Summary               Summary
	Geometry              GeometrySection
	Attribute             AttributeSection
	Projection            ProjectionSection
	Distribution          DistributionSection
	QualityScore          int
	QualityGrade          Grade
	Recommendations       []string
}

// Generate composes the quality report for one conversion run. before is
// the pre-cleanup snapshot (C7 stage 4); after is the dataset once
// cleaning and normalization have run.
func Generate(
	before, after *dataset.Dataset,
	geomStats geometry.Stats,
	attrStats attrs.Stats,
	sourceEPSG, targetEPSG int,
	duration time.Duration,
) Report {
	r := Report{
		GeneratedAt:           time.Now().UTC(),
		ProcessingTimeSeconds: round(duration.Seconds(), 2),
		Summary:               buildSummary(before, after),
		Geometry:              buildGeometrySection(after, geomStats),
		Attribute:             buildAttributeSection(after, attrStats),
		Projection:            buildProjectionSection(sourceEPSG, targetEPSG),
		Distribution:          buildDistributionSection(after),
	}

	score, recs := computeScore(r)
	r.QualityScore = score
	r.QualityGrade = scoreToGrade(score)
	r.Recommendations = recs
	return r
}

func buildSummary(before, after *dataset.Dataset) Summary {
	s := Summary{
		FeaturesInput:  len(before.Features),
		FeaturesOutput: len(after.Features),
		FeaturesLost:   len(before.Features) - len(after.Features),
		ColumnsInput:   len(before.Fields),
		ColumnsOutput:  len(after.Fields),
		GeometryType:   geometry.DominantGeometryType(after),
	}
	s.BBox = bboxOf(after)
	return s
}

func bboxOf(ds *dataset.Dataset) *[4]float64 {
	b, ok := ds.BBox()
	if !ok {
		return nil
	}
	box := [4]float64{
		round(b.Min[0], 6), round(b.Min[1], 6),
		round(b.Max[0], 6), round(b.Max[1], 6),
	}
	return &box
}

func buildGeometrySection(after *dataset.Dataset, stats geometry.Stats) GeometrySection {
	total := len(after.Features)
	if total == 0 {
		return GeometrySection{}
	}
	validCount := 0
	for _, f := range after.Features {
		if f.Geometry != nil {
			validCount++
		}
	}
	sample := stats.ErrorDetails
	if len(sample) > 5 {
		sample = sample[:5]
	}
	return GeometrySection{
		Total:              total,
		ValidCount:         validCount,
		InvalidCount:       total - validCount,
		ValidityRate:       round(float64(validCount)/float64(total)*100, 1),
		NullGeometryCount:  stats.NullGeometry,
		EmptyGeometryCount: stats.Unfixable,
		DuplicatesRemoved:  stats.DuplicatesRemoved,
		ErrorsFound:        stats.InvalidBefore,
		ErrorsFixed:        stats.Fixed,
		Unfixable:          stats.Unfixable,
		ErrorSample:        sample,
	}
}

func buildAttributeSection(after *dataset.Dataset, stats attrs.Stats) AttributeSection {
	if len(after.Fields) == 0 {
		return AttributeSection{}
	}
	cols := make(map[string]ColumnStats, len(after.Fields))
	for _, field := range after.Fields {
		cols[field.Name] = columnStatsFor(after, field)
	}

	belowThreshold := 0
	for _, cs := range cols {
		if cs.NullRate < 5 {
			belowThreshold++
		}
	}
	completeness := 100.0
	if len(cols) > 0 {
		completeness = round(float64(belowThreshold)/float64(len(cols))*100, 1)
	}

	return AttributeSection{
		Columns:                cols,
		TotalColumns:           len(cols),
		CompletenessRate:       completeness,
		ColumnsRenamed:         stats.ColumnsRenamed,
		ColumnsDropped:         stats.ColumnsDropped,
		TypeConversions:        stats.TypeConversions,
		NullValuesStandardized: stats.NullValuesStandardized,
	}
}

func columnStatsFor(ds *dataset.Dataset, field dataset.Field) ColumnStats {
	total := len(ds.Features)
	nullCount := 0
	uniqueVals := map[interface{}]struct{}{}
	var nums []float64

	for _, f := range ds.Features {
		v, ok := f.Properties[field.Name]
		if !ok || v == nil {
			nullCount++
			continue
		}
		uniqueVals[v] = struct{}{}
		if n, isNum := v.(float64); isNum {
			nums = append(nums, n)
		}
	}

	cs := ColumnStats{
		DType:       field.Type.String(),
		NullCount:   nullCount,
		UniqueCount: len(uniqueVals),
	}
	if total > 0 {
		cs.NullRate = round(float64(nullCount)/float64(total)*100, 1)
	}
	if field.Type == dataset.FieldNumeric && len(nums) > 0 {
		min, max, sum := nums[0], nums[0], 0.0
		for _, n := range nums {
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
			sum += n
		}
		mean := round(sum/float64(len(nums)), 4)
		cs.Min, cs.Max, cs.Mean = &min, &max, &mean
	}
	return cs
}

func buildProjectionSection(sourceEPSG, targetEPSG int) ProjectionSection {
	return ProjectionSection{
		SourceEPSG:  sourceEPSG,
		TargetEPSG:  targetEPSG,
		Reprojected: sourceEPSG != 0 && targetEPSG != 0 && sourceEPSG != targetEPSG,
	}
}

func buildDistributionSection(after *dataset.Dataset) DistributionSection {
	bbox := bboxOf(after)
	if bbox == nil {
		return DistributionSection{}
	}
	d := DistributionSection{BBox: bbox}
	if area, ok := estimateAreaKM2(after); ok {
		d.AreaKM2 = &area
	}
	width := bbox[2] - bbox[0]
	height := bbox[3] - bbox[1]
	denom := width * height
	if denom < 0.001 {
		denom = 0.001
	}
	density := round(float64(len(after.Features))/denom, 4)
	d.FeatureDensity = &density
	return d
}

// estimateAreaKM2 reprojects a clone of ds to EPSG:3857 (Web Mercator)
// and sums the planar area of every geometry (zero for points and
// lines). Features are not unioned first, so overlapping polygons are
// counted once per feature.
func estimateAreaKM2(ds *dataset.Dataset) (float64, bool) {
	if ds.EPSG == 0 || len(ds.Features) == 0 {
		return 0, false
	}
	clone := ds.Clone()
	if err := projection.Reproject(clone, 3857); err != nil {
		return 0, false
	}
	total := 0.0
	any := false
	for _, f := range clone.Features {
		if f.Geometry == nil {
			continue
		}
		total += planar.Area(f.Geometry)
		any = true
	}
	if !any {
		return 0, false
	}
	return round(total/1_000_000, 2), true
}

func scoreToGrade(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

func round(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}
