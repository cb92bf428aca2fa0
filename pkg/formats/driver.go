// Package formats implements C6: the driver layer wrapping every
// supported vector format behind one Reader/Writer contract, plus
// archive extraction and multi-file packaging. It plays the role the
// original's single-library "fiona"/OGR wrapper played, except each
// format here is backed by its own focused Go library rather than one
// monolithic binding.
package formats

import (
	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

// Format is the discriminant tag persisted on a job row and used to pick
// a driver out of the registry.
type Format string

const (
	FormatGeoJSON    Format = "geojson"
	FormatShapefile  Format = "shapefile"
	FormatGeoPackage Format = "gpkg"
	FormatKML        Format = "kml"
	FormatDXF        Format = "dxf"
	FormatCSV        Format = "csv"
	FormatFileGDB    Format = "filegdb"
	FormatFlatGeobuf Format = "flatgeobuf"
)

// Descriptor is one row of the discovery table (spec §4.6 "Discovery").
type Descriptor struct {
	Format         Format
	DriverName     string
	DefaultExt     string
	SingleFile     bool
	ReadSupported  bool
	WriteSupported bool
}

// SupportedFormats enumerates every registered format with its
// packaging shape, mirroring the original's list_supported_formats().
func SupportedFormats() []Descriptor {
	out := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		out = append(out, d.Descriptor)
	}
	return out
}

// ReadHints carries the CRS evidence a reader was able to recover while
// opening the file, consumed by pkg/projection.Detect.
type ReadHints struct {
	DriverEPSG int
	DriverWKT  string
	SidecarWKT string
}

// Reader opens a dataset of the driver's format from path using the
// given encoding, falling back to latin-1 on decode failure (spec §4.6
// "Read").
type Reader interface {
	Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error)
}

// Writer writes ds to a new file at path in the driver's format.
// Packaging (ZIP for multi-file outputs) happens one layer up, through
// PackageDirectory and PackageSiblings, not inside the writer itself.
type Writer interface {
	Write(ds *dataset.Dataset, path string) error
}

type driverEntry struct {
	Descriptor
	Reader Reader
	Writer Writer
}

var registry = map[Format]driverEntry{}

func register(e driverEntry) {
	registry[e.Format] = e
}

// Encoding is the output/input text encoding option named in spec §3.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin-1"
)

// Lookup returns the registered driver for format, or InvalidInput if
// unsupported.
func lookup(format Format) (driverEntry, error) {
	e, ok := registry[format]
	if !ok {
		return driverEntry{}, geoerr.New(geoerr.InvalidInput, "formats: unsupported format %q", format)
	}
	return e, nil
}

// Read opens path as format, with the UTF-8 -> latin-1 encoding fallback
// spec §4.6 requires.
func Read(format Format, path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	e, err := lookup(format)
	if err != nil {
		return nil, ReadHints{}, err
	}
	if e.Reader == nil || !e.ReadSupported {
		return nil, ReadHints{}, geoerr.New(geoerr.InvalidInput, "formats: %q does not support reading", format)
	}
	ds, hints, err := e.Reader.Read(path, encoding)
	if err == nil {
		return ds, hints, nil
	}
	if encoding == EncodingLatin1 {
		return nil, ReadHints{}, err
	}
	ds, hints, fallbackErr := e.Reader.Read(path, EncodingLatin1)
	if fallbackErr != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "formats: reading %s as utf-8 and latin-1 both failed", path)
	}
	return ds, hints, nil
}

// Write writes ds to path in format, applying each driver's
// format-specific output rules (e.g. CSV's centroid lat/lon columns).
func Write(format Format, ds *dataset.Dataset, path string) error {
	e, err := lookup(format)
	if err != nil {
		return err
	}
	if e.Writer == nil || !e.WriteSupported {
		return geoerr.New(geoerr.InvalidInput, "formats: %q does not support writing", format)
	}
	return e.Writer.Write(ds, path)
}

// DescriptorFor returns format's discovery row.
func DescriptorFor(format Format) (Descriptor, error) {
	e, err := lookup(format)
	if err != nil {
		return Descriptor{}, err
	}
	return e.Descriptor, nil
}

// OutputExtension returns the user-facing extension for format,
// accounting for multi-file packaging (shapefile/FileGDB -> .zip).
func OutputExtension(format Format) (string, error) {
	d, err := DescriptorFor(format)
	if err != nil {
		return "", err
	}
	if !d.SingleFile {
		return ".zip", nil
	}
	return d.DefaultExt, nil
}
