package jobs

import (
	"context"

	"github.com/google/uuid"

	"github.com/geoconvert/geoconvert/internal/config"
	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/formats"
)

const (
	minEPSG = 1024
	maxEPSG = 32767
)

// Manager implements submit() and poll() (spec §4.8), the user-facing
// half of C8; Worker implements the dequeue-and-process half.
type Manager struct {
	store *Store
	queue *Queue
	limits map[string]config.PlanLimit
}

func NewManager(store *Store, queue *Queue, limits map[string]config.PlanLimit) *Manager {
	return &Manager{store: store, queue: queue, limits: limits}
}

// SubmitRequest is the validated input to Submit.
type SubmitRequest struct {
	UserID           string
	OriginalFilename string
	InputStoragePath string
	InputSizeBytes   int64
	Params           Params
}

// Submit runs spec §4.8's five submission steps: load subscription and
// enforce quota, validate parameters, insert the job row inside the
// atomic quota transaction, enqueue dispatch, and return the job id.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (ConversionJob, error) {
	if err := validateSubmitParams(req.Params, req.InputStoragePath); err != nil {
		return ConversionJob{}, err
	}

	sub, err := m.store.GetSubscription(ctx, req.UserID)
	if err != nil {
		return ConversionJob{}, err
	}
	limit := planLimit(m.limits, sub.Plan)

	job := ConversionJob{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		OriginalFilename: req.OriginalFilename,
		InputStoragePath: req.InputStoragePath,
		InputSizeBytes:   req.InputSizeBytes,
		Params:           req.Params,
		Status:           StatusPending,
	}

	if err := m.store.InsertJobWithQuotaCheck(ctx, job, limit); err != nil {
		return ConversionJob{}, err
	}
	if err := m.queue.Enqueue(ctx, job.ID); err != nil {
		// The job row committed; a failed enqueue would strand it in
		// pending forever, so this is reported but not fatal to the
		// caller — the cleanup/reclaim path does not cover "never
		// dispatched" jobs, which is a known gap recorded in DESIGN.md.
		return job, err
	}
	return job, nil
}

func validateSubmitParams(p Params, inputPath string) error {
	if inputPath == "" {
		return geoerr.New(geoerr.InvalidInput, "jobs: input storage path is required")
	}
	if _, err := formats.DescriptorFor(p.OutputFormat); err != nil {
		return geoerr.New(geoerr.InvalidInput, "jobs: unsupported output format %q", p.OutputFormat)
	}
	if p.TargetEPSG != 0 && (p.TargetEPSG < minEPSG || p.TargetEPSG > maxEPSG) {
		return geoerr.New(geoerr.InvalidInput, "jobs: target_epsg %d out of range [%d, %d]", p.TargetEPSG, minEPSG, maxEPSG)
	}
	switch p.Encoding {
	case formats.EncodingUTF8, formats.EncodingLatin1:
	default:
		return geoerr.New(geoerr.InvalidInput, "jobs: unsupported encoding %q", p.Encoding)
	}
	return nil
}

// Poll loads a job's current state for the submitting user, used by
// the HTTP status-polling endpoint (excluded from this core by
// SPEC_FULL.md's Non-goals, but the underlying operation lives here).
func (m *Manager) Poll(ctx context.Context, userID, jobID string) (ConversionJob, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return ConversionJob{}, err
	}
	if job.UserID != userID {
		return ConversionJob{}, geoerr.New(geoerr.Forbidden, "jobs: job %s does not belong to this user", jobID)
	}
	return job, nil
}
