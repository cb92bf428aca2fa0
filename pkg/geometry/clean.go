// Package geometry implements C3: the five-phase geometry-cleaning
// pipeline (null removal, validity check, make-valid repair, emptied-
// after-fix removal, byte-equal dedup) grounded on the original
// GeometryCleaner.
package geometry

import (
	"encoding/hex"

	"github.com/paulmach/orb"

	"github.com/geoconvert/geoconvert/pkg/dataset"
)

// ErrorSample is one entry of Stats.ErrorDetails.
type ErrorSample struct {
	Index  int
	Reason string
}

// Stats is the structured result of Clean, mirroring the original's
// stats dict.
type Stats struct {
	TotalInput         int
	NullGeometry       int
	InvalidBefore      int
	Fixed              int
	Unfixable          int
	DuplicatesRemoved  int
	TotalOutput        int
	ErrorDetails       []ErrorSample
}

const maxErrorSamples = 10

// Clean runs the five ordered phases of spec §4.3 over ds and returns a
// new dataset plus the stats of the run. ds is not mutated.
func Clean(ds *dataset.Dataset) (*dataset.Dataset, Stats, error) {
	stats := Stats{TotalInput: len(ds.Features)}

	// Phase 1: drop rows with null geometry.
	kept := make([]dataset.Feature, 0, len(ds.Features))
	for _, f := range ds.Features {
		if f.Geometry == nil {
			stats.NullGeometry++
			continue
		}
		kept = append(kept, f)
	}

	if len(kept) == 0 {
		return &dataset.Dataset{Fields: ds.Fields, EPSG: ds.EPSG}, stats, nil
	}

	// Phase 2: validate, collecting up to 10 (index, reason) samples.
	invalid := make([]bool, len(kept))
	for i, f := range kept {
		valid, reason, err := validity(f.Geometry)
		if err != nil {
			return nil, stats, err
		}
		if valid {
			continue
		}
		invalid[i] = true
		stats.InvalidBefore++
		if len(stats.ErrorDetails) < maxErrorSamples {
			stats.ErrorDetails = append(stats.ErrorDetails, ErrorSample{Index: i, Reason: reason})
		}
	}

	// Phase 3: make-valid repair for invalid geometries.
	for i := range kept {
		if !invalid[i] {
			continue
		}
		fixed, err := makeValid(kept[i].Geometry)
		if err != nil {
			return nil, stats, err
		}
		kept[i].Geometry = fixed // nil when repair result is empty
	}

	// Phase 4: drop geometries that are null or empty after repair.
	afterFix := make([]dataset.Feature, 0, len(kept))
	for i, f := range kept {
		if invalid[i] && f.Geometry == nil {
			stats.Unfixable++
			continue
		}
		afterFix = append(afterFix, f)
	}
	stats.Fixed = stats.InvalidBefore - stats.Unfixable

	// Phase 5: drop rows whose geometry is byte-equal to a previously
	// kept row's geometry (first-wins), then reset indexing.
	seen := make(map[string]struct{}, len(afterFix))
	deduped := make([]dataset.Feature, 0, len(afterFix))
	for _, f := range afterFix {
		key, err := wkbBytes(f.Geometry)
		if err != nil {
			return nil, stats, err
		}
		k := hex.EncodeToString(key)
		if _, dup := seen[k]; dup {
			stats.DuplicatesRemoved++
			continue
		}
		seen[k] = struct{}{}
		deduped = append(deduped, f)
	}

	stats.TotalOutput = len(deduped)

	return &dataset.Dataset{Fields: ds.Fields, Features: deduped, EPSG: ds.EPSG}, stats, nil
}

// DominantGeometryType returns the most frequent geometry kind in ds, or
// "Unknown" if ds has no features.
func DominantGeometryType(ds *dataset.Dataset) string {
	if len(ds.Features) == 0 {
		return "Unknown"
	}
	counts := map[string]int{}
	best, bestCount := "Unknown", 0
	for _, f := range ds.Features {
		kind := dataset.GeometryKind(f.Geometry)
		counts[kind]++
		if counts[kind] > bestCount {
			best, bestCount = kind, counts[kind]
		}
	}
	return best
}

// ExplodeCollections splits every GeometryCollection feature in ds into
// one feature per member geometry, duplicating the row's attributes.
// Mirrors the original's explode_collections.
func ExplodeCollections(ds *dataset.Dataset) *dataset.Dataset {
	out := &dataset.Dataset{Fields: ds.Fields, EPSG: ds.EPSG}
	for _, f := range ds.Features {
		coll, ok := f.Geometry.(orb.Collection)
		if !ok {
			out.Features = append(out.Features, f)
			continue
		}
		for _, member := range coll {
			out.Features = append(out.Features, dataset.Feature{
				Geometry:   member,
				Properties: f.Properties,
			})
		}
	}
	return out
}
