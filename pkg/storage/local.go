package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// LocalBackend stores blobs on the local filesystem under two
// directories, one per folder. get_url for local storage does not sign
// anything: it points at the artifact-retrieval endpoint, which enforces
// the ownership check itself (spec §4.1).
type LocalBackend struct {
	uploadDir     string
	outputDir     string
	downloadBase  string // e.g. "/api/v1/download/file"
}

// NewLocalBackend ensures both directories exist and returns a ready
// backend. downloadBase is the path prefix the (excluded) HTTP layer
// mounts its authenticated file-serving endpoint at.
func NewLocalBackend(uploadDir, outputDir, downloadBase string) (*LocalBackend, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: creating upload dir")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: creating output dir")
	}
	return &LocalBackend{uploadDir: uploadDir, outputDir: outputDir, downloadBase: downloadBase}, nil
}

func (b *LocalBackend) dirFor(folder Folder) string {
	if folder == FolderUploads {
		return b.uploadDir
	}
	return b.outputDir
}

func (b *LocalBackend) Save(_ context.Context, data []byte, logicalName string, folder Folder) (string, error) {
	uniqueName := uuid.New().String() + "_" + filepath.Base(logicalName)
	path := filepath.Join(b.dirFor(folder), uniqueName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "storage: opening %s for write", path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "storage: writing %s", path)
	}
	if err := f.Sync(); err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "storage: fsync %s", path)
	}
	return path, nil
}

func (b *LocalBackend) URL(_ context.Context, storagePath string, ttl time.Duration) (string, error) {
	if strings.HasPrefix(storagePath, "s3://") {
		return "", geoerr.New(geoerr.InvalidInput, "storage: %q is not a local path for this backend", storagePath)
	}
	v := url.Values{}
	v.Set("path", storagePath)
	v.Set("expires_in", strconv.Itoa(int(ttl.Seconds())))
	return fmt.Sprintf("%s?%s", b.downloadBase, v.Encode()), nil
}

func (b *LocalBackend) Delete(_ context.Context, storagePath string) error {
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return geoerr.Wrap(err, geoerr.UpstreamError, "storage: deleting %s", storagePath)
	}
	return nil
}

func (b *LocalBackend) Read(_ context.Context, storagePath string) ([]byte, error) {
	data, err := os.ReadFile(storagePath)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "storage: reading %s", storagePath)
	}
	return data, nil
}
