package jobs

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/geoconvert/geoconvert/pkg/storage"
)

// CleanupTask implements spec §4.8's hourly expiry sweep: selects every
// success job past its download_expires_at, deletes the artifact, and
// marks the row expired. Per-job failures are swallowed and retried on
// the next run, rather than aborting the whole sweep.
type CleanupTask struct {
	store   *Store
	backend storage.Backend
	logger  log.Logger
}

func NewCleanupTask(store *Store, backend storage.Backend, logger log.Logger) *CleanupTask {
	return &CleanupTask{store: store, backend: backend, logger: logger}
}

// Run executes one sweep.
func (c *CleanupTask) Run(ctx context.Context) {
	jobs, err := c.store.ExpiredArtifacts(ctx)
	if err != nil {
		level.Error(c.logger).Log("msg", "cleanup: listing expired artifacts failed", "err", err)
		return
	}
	for _, job := range jobs {
		if err := c.backend.Delete(ctx, job.OutputStoragePath); err != nil {
			level.Warn(c.logger).Log("msg", "cleanup: artifact delete failed, will retry next run", "job_id", job.ID, "err", err)
			continue
		}
		if err := c.store.ExpireArtifact(ctx, job.ID); err != nil {
			level.Warn(c.logger).Log("msg", "cleanup: marking job expired failed, will retry next run", "job_id", job.ID, "err", err)
		}
	}
}
