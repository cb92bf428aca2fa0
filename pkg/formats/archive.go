package formats

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// principalPriority is the search order for locating the principal
// payload inside an extracted ZIP (spec §4.6 "Input extraction").
var principalPriority = []string{".shp", ".gpkg", ".geojson", ".kml", ".gdb", ".dxf", ".csv"}

// ExtractZip extracts src into a fresh subdirectory of destParent and
// returns the path to the principal payload found inside, searched for
// in principalPriority order. A ".gdb" match may be a directory; its own
// path is returned rather than a file inside it.
func ExtractZip(src, destParent string) (principal string, extractDir string, err error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return "", "", geoerr.Wrap(err, geoerr.InvalidInput, "formats: opening zip %s", src)
	}
	defer r.Close()

	extractDir, err = os.MkdirTemp(destParent, "geoconvert-extract-*")
	if err != nil {
		return "", "", geoerr.Wrap(err, geoerr.UpstreamError, "formats: creating extraction dir")
	}

	for _, f := range r.File {
		target := filepath.Join(extractDir, filepath.Clean(f.Name))
		if !isWithinDir(extractDir, target) {
			return "", "", geoerr.New(geoerr.InvalidInput, "formats: zip entry %q escapes extraction directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", "", geoerr.Wrap(err, geoerr.UpstreamError, "formats: creating dir %s", target)
			}
			continue
		}
		if err := extractOne(f, target); err != nil {
			return "", "", err
		}
	}

	principal, err = findPrincipal(extractDir)
	if err != nil {
		return "", "", err
	}
	return principal, extractDir, nil
}

func extractOne(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "formats: creating dir for %s", target)
	}
	rc, err := f.Open()
	if err != nil {
		return geoerr.Wrap(err, geoerr.InvalidInput, "formats: opening zip entry %s", f.Name)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "formats: creating %s", target)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "formats: writing %s", target)
	}
	return nil
}

func isWithinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

func findPrincipal(dir string) (string, error) {
	var entries []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		entries = append(entries, path)
		if info.IsDir() && filepath.Ext(path) == ".gdb" {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "formats: walking extracted archive")
	}
	sort.Strings(entries)

	for _, ext := range principalPriority {
		for _, e := range entries {
			if filepath.Ext(e) == ext {
				return e, nil
			}
		}
	}
	return "", geoerr.New(geoerr.InvalidInput, "formats: no recognized payload found in archive")
}

// PackageDirectory ZIPs every file under srcRoot (a directory, for
// FileGDB) into a single archive at destZip, naming entries relative to
// srcRoot's parent so the directory itself is kept in the archive.
func PackageDirectory(srcRoot, destZip string) error {
	out, err := os.OpenFile(destZip, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "formats: creating %s", destZip)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	return filepath.Walk(srcRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(filepath.Dir(srcRoot), path)
		if err != nil {
			return err
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
}

// PackageSiblings ZIPs every file matching baseWithoutExt.* (shapefile's
// .shp/.dbf/.shx/.prj/.cpg family) into destZip.
func PackageSiblings(baseWithoutExt, destZip string) error {
	out, err := os.OpenFile(destZip, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "formats: creating %s", destZip)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	matches, err := filepath.Glob(baseWithoutExt + ".*")
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "formats: globbing siblings of %s", baseWithoutExt)
	}
	for _, m := range matches {
		w, err := zw.Create(filepath.Base(m))
		if err != nil {
			return err
		}
		in, err := os.Open(m)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, in); err != nil {
			in.Close()
			return err
		}
		in.Close()
	}
	return nil
}
