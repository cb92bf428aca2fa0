// Package conversion implements C7: the nine-stage pipeline that
// composes C2 (projection) through C6 (format drivers) into one
// process() operation, mirroring the original ConversionService's
// run_pipeline orchestration.
package conversion

import (
	"os"
	"path/filepath"
	"time"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/attrs"
	"github.com/geoconvert/geoconvert/pkg/dataset"
	"github.com/geoconvert/geoconvert/pkg/formats"
	"github.com/geoconvert/geoconvert/pkg/geometry"
	"github.com/geoconvert/geoconvert/pkg/projection"
	"github.com/geoconvert/geoconvert/pkg/quality"
)

// Params is the full set of user-supplied conversion options (spec
// §4.7's process() signature).
type Params struct {
	InputPath        string
	OutputFormat     formats.Format
	TargetEPSG       int // 0 means "not provided"
	FixGeometries    bool
	NormalizeAttrs   bool
	Encoding         formats.Encoding
	WorkDir          string // scratch directory for extraction/intermediate files
}

// Result is everything the worker (C8) persists onto the job row after
// a successful run.
type Result struct {
	ArtifactPath    string
	SourceFormat    formats.Format
	OutputFormat    formats.Format
	OutputFeatures  int
	SourceEPSG      int
	TargetEPSG      int
	Report          quality.Report
	GeometryStats   geometry.Stats
	AttributeStats  attrs.Stats
	ProcessingTime  time.Duration
}

// Process drives the nine fixed stages of spec §4.7 in order; any stage
// failure aborts with a typed *geoerr.Error and no partial artifact is
// left behind that the caller did not create itself.
func Process(p Params) (Result, error) {
	start := time.Now()

	if err := ensureWorkDir(p.WorkDir); err != nil {
		return Result{}, err
	}

	inputPath, err := resolveInput(p)
	if err != nil {
		return Result{}, err
	}

	sourceFormat, readHints, ds, err := readSource(inputPath, p.Encoding)
	if err != nil {
		return Result{}, err
	}

	detection := projection.Detect(projection.Hints{
		DriverEPSG: readHints.DriverEPSG,
		DriverWKT:  readHints.DriverWKT,
		SidecarWKT: readHints.SidecarWKT,
		Sample:     sampleOf(ds, 100),
	})
	ds.EPSG = detection.EPSG

	before := ds.Clone()

	var geomStats geometry.Stats
	if p.FixGeometries {
		cleaned, stats, err := geometry.Clean(ds)
		if err != nil {
			return Result{}, err
		}
		ds = cleaned
		geomStats = stats
	}

	var attrStats attrs.Stats
	if p.NormalizeAttrs {
		normalized, stats := attrs.Normalize(ds, attrsTargetFormat(p.OutputFormat))
		ds = normalized
		attrStats = stats
	}

	effectiveTarget, err := applyReprojectionPolicy(ds, detection.EPSG, p.TargetEPSG)
	if err != nil {
		return Result{}, err
	}

	outPath, err := writeOutput(ds, p)
	if err != nil {
		return Result{}, err
	}

	artifactPath, err := packageOutput(outPath, p)
	if err != nil {
		return Result{}, err
	}

	report := quality.Generate(before, ds, geomStats, attrStats, detection.EPSG, effectiveTarget, time.Since(start))

	return Result{
		ArtifactPath:   artifactPath,
		SourceFormat:   sourceFormat,
		OutputFormat:   p.OutputFormat,
		OutputFeatures: len(ds.Features),
		SourceEPSG:     detection.EPSG,
		TargetEPSG:     effectiveTarget,
		Report:         report,
		GeometryStats:  geomStats,
		AttributeStats: attrStats,
		ProcessingTime: time.Since(start),
	}, nil
}

// resolveInput is stage 1: extract the archive if input_path is a ZIP,
// otherwise the input path is used as-is.
func resolveInput(p Params) (string, error) {
	if formats.ExtOf(p.InputPath) != ".zip" {
		return p.InputPath, nil
	}
	principal, _, err := formats.ExtractZip(p.InputPath, p.WorkDir)
	if err != nil {
		return "", err
	}
	return principal, nil
}

// readSource is stages 2-3: the format is inferred from the resolved
// input's extension, then read with the UTF-8 -> latin-1 fallback. The
// detected container format is returned alongside the dataset since
// C8 persists it onto the job row as source_format.
func readSource(path string, encoding formats.Encoding) (formats.Format, formats.ReadHints, *dataset.Dataset, error) {
	format, err := formatForExtension(formats.ExtOf(path))
	if err != nil {
		return "", formats.ReadHints{}, nil, err
	}
	ds, hints, err := formats.Read(format, path, encoding)
	if err != nil {
		return "", formats.ReadHints{}, nil, err
	}
	return format, hints, ds, nil
}

// attrsTargetFormat maps the C6 format tag onto the C4 target-format
// name, which only distinguishes "does DBF's 10-char column limit
// apply" (shapefile) from everything else.
func attrsTargetFormat(f formats.Format) attrs.TargetFormat {
	if f == formats.FormatShapefile {
		return attrs.FormatShapefile
	}
	return attrs.TargetFormat(f)
}

func formatForExtension(ext string) (formats.Format, error) {
	switch ext {
	case ".shp":
		return formats.FormatShapefile, nil
	case ".gpkg":
		return formats.FormatGeoPackage, nil
	case ".geojson", ".json":
		return formats.FormatGeoJSON, nil
	case ".kml":
		return formats.FormatKML, nil
	case ".dxf":
		return formats.FormatDXF, nil
	case ".csv":
		return formats.FormatCSV, nil
	case ".gdb":
		return formats.FormatFileGDB, nil
	case ".fgb":
		return formats.FormatFlatGeobuf, nil
	default:
		return "", geoerr.New(geoerr.InvalidInput, "conversion: unrecognized input extension %q", ext)
	}
}

func sampleOf(ds *dataset.Dataset, n int) *dataset.Dataset {
	if ds == nil {
		return nil
	}
	if len(ds.Features) <= n {
		return ds
	}
	sample := &dataset.Dataset{Fields: ds.Fields, EPSG: ds.EPSG, Features: ds.Features[:n]}
	return sample
}

// applyReprojectionPolicy is stage 7 of spec §4.7: reproject if a
// differing target was given; otherwise pin the dataset's CRS to the
// source and treat source as the effective target; if both are
// unknown, leave the dataset's CRS unspecified.
func applyReprojectionPolicy(ds *dataset.Dataset, sourceEPSG, targetEPSG int) (int, error) {
	switch {
	case targetEPSG != 0 && targetEPSG != sourceEPSG:
		if err := projection.Reproject(ds, targetEPSG); err != nil {
			return 0, err
		}
		return targetEPSG, nil
	case targetEPSG != 0 && targetEPSG == sourceEPSG:
		return targetEPSG, nil
	case sourceEPSG != 0:
		projection.SetCRS(ds, sourceEPSG)
		return sourceEPSG, nil
	default:
		return 0, nil
	}
}

// writeOutput is stage 8: write the dataset to a temp path in the
// target format.
func writeOutput(ds *dataset.Dataset, p Params) (string, error) {
	desc, err := formats.DescriptorFor(p.OutputFormat)
	if err != nil {
		return "", err
	}
	// FileGDB writes a directory at this path; shapefile writes a stem
	// that go-shp expands into .shp/.dbf/.shx siblings; everything else
	// is a single file.
	outPath := filepath.Join(p.WorkDir, "output"+desc.DefaultExt)
	if err := formats.Write(p.OutputFormat, ds, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// packageOutput is stage 9: ZIP multi-file outputs; pass single-file
// outputs through unchanged.
func packageOutput(outPath string, p Params) (string, error) {
	desc, err := formats.DescriptorFor(p.OutputFormat)
	if err != nil {
		return "", err
	}
	if desc.SingleFile {
		return outPath, nil
	}

	zipPath := filepath.Join(p.WorkDir, "output.zip")
	if p.OutputFormat == formats.FormatFileGDB {
		if err := formats.PackageDirectory(outPath, zipPath); err != nil {
			return "", err
		}
		return zipPath, nil
	}

	stem := outPath[:len(outPath)-len(filepath.Ext(outPath))]
	if err := formats.PackageSiblings(stem, zipPath); err != nil {
		return "", err
	}
	return zipPath, nil
}

// ensureWorkDir creates p.WorkDir if it does not already exist; called
// by callers that construct a fresh per-job scratch directory.
func ensureWorkDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "conversion: creating work dir %s", dir)
	}
	return nil
}
