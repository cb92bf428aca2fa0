package artifacts

import (
	"context"
	"testing"
	"time"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/internal/jobs"
	"github.com/geoconvert/geoconvert/pkg/formats"
	"github.com/geoconvert/geoconvert/pkg/storage"
)

type fakeJobLoader struct {
	job jobs.ConversionJob
	err error
}

func (f fakeJobLoader) GetJob(ctx context.Context, jobID string) (jobs.ConversionJob, error) {
	return f.job, f.err
}

type stubBackend struct{}

func (stubBackend) Save(ctx context.Context, data []byte, logicalName string, folder storage.Folder) (string, error) {
	return "", nil
}
func (stubBackend) URL(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	return "https://example.test/" + storagePath, nil
}
func (stubBackend) Delete(ctx context.Context, storagePath string) error { return nil }
func (stubBackend) Read(ctx context.Context, storagePath string) ([]byte, error) {
	return nil, nil
}

func baseJob() jobs.ConversionJob {
	future := time.Now().Add(time.Hour)
	return jobs.ConversionJob{
		ID:                "job-1",
		UserID:            "user-1",
		OriginalFilename:  "parcels.geojson",
		Status:            jobs.StatusSuccess,
		OutputStoragePath: "outputs/job-1.shp.zip",
		DownloadExpiresAt: &future,
		Params:            jobs.Params{OutputFormat: formats.FormatShapefile},
	}
}

func TestGetArtifactURLWrongOwnerIsForbidden(t *testing.T) {
	loader := fakeJobLoader{job: baseJob()}
	_, err := GetArtifactURL(context.Background(), loader, stubBackend{}, "someone-else", "job-1")
	if geoerr.KindOf(err) != geoerr.Forbidden {
		t.Fatalf("err kind = %v, want Forbidden", geoerr.KindOf(err))
	}
}

func TestGetArtifactURLNotSuccessIsNotReady(t *testing.T) {
	job := baseJob()
	job.Status = jobs.StatusProcessing
	loader := fakeJobLoader{job: job}
	_, err := GetArtifactURL(context.Background(), loader, stubBackend{}, "user-1", "job-1")
	if geoerr.KindOf(err) != geoerr.NotReady {
		t.Fatalf("err kind = %v, want NotReady", geoerr.KindOf(err))
	}
}

func TestGetArtifactURLNoOutputPathIsNotFound(t *testing.T) {
	job := baseJob()
	job.OutputStoragePath = ""
	loader := fakeJobLoader{job: job}
	_, err := GetArtifactURL(context.Background(), loader, stubBackend{}, "user-1", "job-1")
	if geoerr.KindOf(err) != geoerr.NotFound {
		t.Fatalf("err kind = %v, want NotFound", geoerr.KindOf(err))
	}
}

func TestGetArtifactURLExpired(t *testing.T) {
	job := baseJob()
	past := time.Now().Add(-time.Hour)
	job.DownloadExpiresAt = &past
	loader := fakeJobLoader{job: job}
	_, err := GetArtifactURL(context.Background(), loader, stubBackend{}, "user-1", "job-1")
	if geoerr.KindOf(err) != geoerr.Expired {
		t.Fatalf("err kind = %v, want Expired", geoerr.KindOf(err))
	}
}

func TestGetArtifactURLSuccess(t *testing.T) {
	loader := fakeJobLoader{job: baseJob()}
	desc, err := GetArtifactURL(context.Background(), loader, stubBackend{}, "user-1", "job-1")
	if err != nil {
		t.Fatalf("GetArtifactURL: %v", err)
	}
	if desc.UserFacingFilename != "parcels_converted.zip" {
		t.Errorf("UserFacingFilename = %q, want parcels_converted.zip", desc.UserFacingFilename)
	}
	if desc.URL == "" {
		t.Error("URL should not be empty")
	}
}
