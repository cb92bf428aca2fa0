// Package artifacts implements C9: validating ownership and expiry of
// a completed job's output blob and handing back a signed, time-
// limited download descriptor.
package artifacts

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/internal/jobs"
	"github.com/geoconvert/geoconvert/pkg/formats"
	"github.com/geoconvert/geoconvert/pkg/storage"
)

const urlTTL = time.Hour

// URLDescriptor is the result of GetArtifactURL.
type URLDescriptor struct {
	URL              string
	UserFacingFilename string
	ExpiresAt        time.Time
	SizeBytes        int64
}

type jobLoader interface {
	GetJob(ctx context.Context, jobID string) (jobs.ConversionJob, error)
}

// GetArtifactURL implements spec §4.9.
func GetArtifactURL(ctx context.Context, store jobLoader, backend storage.Backend, userID, jobID string) (URLDescriptor, error) {
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return URLDescriptor{}, err
	}
	if job.UserID != userID {
		return URLDescriptor{}, geoerr.New(geoerr.Forbidden, "artifacts: job %s does not belong to this user", jobID)
	}
	if job.Status != jobs.StatusSuccess {
		return URLDescriptor{}, geoerr.New(geoerr.NotReady, "artifacts: job %s is not complete", jobID)
	}
	if job.OutputStoragePath == "" {
		return URLDescriptor{}, geoerr.New(geoerr.NotFound, "artifacts: job %s has no output artifact", jobID)
	}
	if job.DownloadExpiresAt == nil || time.Now().After(*job.DownloadExpiresAt) {
		return URLDescriptor{}, geoerr.New(geoerr.Expired, "artifacts: job %s's artifact has expired", jobID)
	}

	url, err := backend.URL(ctx, job.OutputStoragePath, urlTTL)
	if err != nil {
		return URLDescriptor{}, err
	}

	return URLDescriptor{
		URL:                url,
		UserFacingFilename: derivedFilename(job.OriginalFilename, job.Params.OutputFormat),
		ExpiresAt:          time.Now().UTC().Add(urlTTL),
		SizeBytes:          job.OutputSizeBytes,
	}, nil
}

// derivedFilename builds "<stem>_converted<ext>" per spec §4.9.
func derivedFilename(originalFilename string, format formats.Format) string {
	stem := strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))
	ext, err := formats.OutputExtension(format)
	if err != nil {
		ext = ""
	}
	return stem + "_converted" + ext
}
