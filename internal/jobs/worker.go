package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/geoconvert/geoconvert/internal/config"
	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/conversion"
	"github.com/geoconvert/geoconvert/pkg/storage"
)

// progressCheckpoint is one of the three best-effort publication points
// of spec §4.8.
type progressCheckpoint int

const (
	progressInputResolved progressCheckpoint = 10
	progressStarted       progressCheckpoint = 30
	progressStoringOutput progressCheckpoint = 80
)

// ProgressPublisher is a best-effort sink for checkpoint updates;
// failures must never fail the job (spec §4.8). A nil publisher is a
// valid no-op.
type ProgressPublisher interface {
	Publish(ctx context.Context, jobID string, percent int)
}

// Worker pulls at most one job at a time off Queue and drives it
// through pkg/conversion.Process to a terminal status.
type Worker struct {
	id        string
	store     *Store
	queue     *Queue
	backend   storage.Backend
	progress  ProgressPublisher
	cfg       config.Config
	logger    log.Logger
	scratchDir string

	// storageBreaker trips after repeated storage-backend failures so
	// a struggling object store doesn't burn through every worker's
	// retry budget on every single job.
	storageBreaker *gobreaker.CircuitBreaker
}

func NewWorker(store *Store, queue *Queue, backend storage.Backend, progress ProgressPublisher, cfg config.Config, logger log.Logger, scratchDir string) *Worker {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage-backend",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Worker{
		id:             "worker-" + uuid.New().String(),
		store:          store,
		queue:          queue,
		backend:        backend,
		progress:       progress,
		cfg:            cfg,
		logger:         logger,
		scratchDir:     scratchDir,
		storageBreaker: breaker,
	}
}

// Run blocks pulling and processing jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		level.Error(w.logger).Log("msg", "failed to ensure consumer group", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		delivery, err := w.queue.Pull(ctx, w.id, 5*time.Second)
		if err != nil {
			level.Error(w.logger).Log("msg", "pull failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			continue
		}
		w.handle(ctx, *delivery)
	}
}

func (w *Worker) handle(ctx context.Context, d Delivery) {
	logger := log.With(w.logger, "job_id", d.JobID)

	if err := w.processWithRetry(ctx, d.JobID, logger); err != nil {
		level.Error(logger).Log("msg", "job failed permanently", "err", err)
	}
	if err := w.queue.Ack(ctx, d.MessageID); err != nil {
		level.Error(logger).Log("msg", "ack failed", "err", err)
	}
}

// processWithRetry retries only the transient errors spec §4.8
// names ("messages containing \"connection\" or \"timeout\"") up to
// cfg.MaxRetries times with a fixed back-off; all other errors are
// terminal after one attempt.
func (w *Worker) processWithRetry(ctx context.Context, jobID string, logger log.Logger) error {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			level.Warn(logger).Log("msg", "retrying transient failure", "attempt", attempt, "err", lastErr)
			time.Sleep(w.cfg.RetryBackoff)
		}
		err := w.processOnce(ctx, jobID, logger)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout")
}

func (w *Worker) processOnce(ctx context.Context, jobID string, logger log.Logger) error {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := w.store.MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	workDir := filepath.Join(w.scratchDir, jobID)
	defer os.RemoveAll(workDir)

	localInput, err := w.stageInput(ctx, job.InputStoragePath, workDir)
	if err != nil {
		return w.fail(ctx, jobID, err, logger)
	}
	w.publish(ctx, jobID, progressInputResolved)
	w.publish(ctx, jobID, progressStarted)

	result, err := w.runWithTimeout(ctx, conversion.Params{
		InputPath:      localInput,
		OutputFormat:   job.Params.OutputFormat,
		TargetEPSG:     job.Params.TargetEPSG,
		FixGeometries:  job.Params.FixGeometries,
		NormalizeAttrs: job.Params.NormalizeAttrs,
		Encoding:       job.Params.Encoding,
		WorkDir:        workDir,
	})
	if err != nil {
		return w.fail(ctx, jobID, err, logger)
	}
	w.publish(ctx, jobID, progressStoringOutput)

	return w.storeResult(ctx, jobID, result)
}

// runWithTimeout enforces the soft time limit (spec §4.8): a job still
// running after ConversionSoftTimeout surfaces a Timeout error. The
// underlying goroutine is not forcibly killed (conversion.Process does
// not accept a cancellation signal mid-stage, matching spec §4.7's
// "not required to yield mid-stage"); it is abandoned and its result
// discarded. The hard limit is enforced one layer up, by the process
// supervisor restarting a worker that exceeds it.
func (w *Worker) runWithTimeout(ctx context.Context, params conversion.Params) (conversion.Result, error) {
	type outcome struct {
		result conversion.Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := conversion.Process(params)
		ch <- outcome{r, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-time.After(w.cfg.ConversionSoftTimeout):
		return conversion.Result{}, geoerr.New(geoerr.Timeout, "conversion: Timeout dépassé")
	}
}

func (w *Worker) stageInput(ctx context.Context, storagePath, workDir string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "jobs: creating scratch dir")
	}
	data, err := w.readWithBreaker(ctx, storagePath)
	if err != nil {
		return "", err
	}
	localPath := filepath.Join(workDir, filepath.Base(storagePath))
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "jobs: staging input locally")
	}
	return localPath, nil
}

func (w *Worker) readWithBreaker(ctx context.Context, storagePath string) ([]byte, error) {
	out, err := w.storageBreaker.Execute(func() (interface{}, error) {
		return w.backend.Read(ctx, storagePath)
	})
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "jobs: reading input from storage")
	}
	return out.([]byte), nil
}

func (w *Worker) storeResult(ctx context.Context, jobID string, result conversion.Result) error {
	data, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "jobs: reading produced artifact")
	}

	storagePath, err := w.backend.Save(ctx, data, filepath.Base(result.ArtifactPath), storage.FolderOutputs)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: saving output artifact")
	}

	expiresAt := time.Now().UTC().Add(w.cfg.ArtifactTTL)
	return w.store.MarkSuccess(ctx, jobID, CompletionUpdate{
		OutputStoragePath:  storagePath,
		OutputSizeBytes:    int64(len(data)),
		OutputFeatureCount: result.OutputFeatures,
		SourceEPSG:         result.SourceEPSG,
		SourceFormat:       result.SourceFormat,
		SourceGeometryKind: result.Report.Summary.GeometryType,
		InputFeatureCount:  result.Report.Summary.FeaturesInput,
		ProcessingDuration: result.ProcessingTime,
		Report:             result.Report,
		DownloadExpiresAt:  expiresAt,
	})
}

func (w *Worker) fail(ctx context.Context, jobID string, cause error, logger log.Logger) error {
	kind := geoerr.KindOf(cause)
	message := cause.Error()
	if kind == geoerr.Timeout {
		message = "Timeout dépassé"
	}
	if markErr := w.store.MarkFailed(ctx, jobID, message, cause.Error()); markErr != nil {
		level.Error(logger).Log("msg", "failed to record job failure", "err", markErr)
	}
	return cause
}

func (w *Worker) publish(ctx context.Context, jobID string, checkpoint progressCheckpoint) {
	if w.progress == nil {
		return
	}
	defer func() {
		// Progress publication is best-effort (spec §4.8); a panic in
		// a misbehaving publisher must not fail the job.
		_ = recover()
	}()
	w.progress.Publish(ctx, jobID, int(checkpoint))
}
