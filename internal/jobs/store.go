package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/formats"
	"github.com/geoconvert/geoconvert/pkg/quality"
)

// Store persists ConversionJobs and Subscriptions to Postgres via
// sqlx, and implements the quota-check-and-increment transaction spec
// §4.8 requires to be atomic.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type jobRow struct {
	ID     string `db:"id"`
	UserID string `db:"user_id"`
	TaskID sql.NullString `db:"task_id"`

	OriginalFilename   string         `db:"original_filename"`
	InputStoragePath   string         `db:"input_storage_path"`
	InputSizeBytes     int64          `db:"input_size_bytes"`
	SourceFormat       sql.NullString `db:"source_format"`
	SourceEPSG         sql.NullInt32  `db:"source_epsg"`
	SourceGeometryKind sql.NullString `db:"source_geometry_kind"`
	InputFeatureCount  sql.NullInt32  `db:"input_feature_count"`

	OutputFormat   string        `db:"output_format"`
	TargetEPSG     sql.NullInt32 `db:"target_epsg"`
	FixGeometries  bool          `db:"fix_geometries"`
	NormalizeAttrs bool          `db:"normalize_attrs"`
	Encoding       string        `db:"encoding"`

	Status               string         `db:"status"`
	OutputStoragePath    sql.NullString `db:"output_storage_path"`
	OutputSizeBytes      sql.NullInt64  `db:"output_size_bytes"`
	OutputFeatureCount   sql.NullInt32  `db:"output_feature_count"`
	ProcessingDurationMs sql.NullInt64  `db:"processing_duration_ms"`
	QualityReport        []byte         `db:"quality_report"`
	DownloadExpiresAt    sql.NullTime   `db:"download_expires_at"`
	ErrorMessage         sql.NullString `db:"error_message"`
	ErrorTrace           sql.NullString `db:"error_trace"`

	CreatedAt   time.Time    `db:"created_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r jobRow) toJob() (ConversionJob, error) {
	j := ConversionJob{
		ID:                 r.ID,
		UserID:             r.UserID,
		TaskID:             r.TaskID.String,
		OriginalFilename:   r.OriginalFilename,
		InputStoragePath:   r.InputStoragePath,
		InputSizeBytes:     r.InputSizeBytes,
		SourceFormat:       formats.Format(r.SourceFormat.String),
		SourceEPSG:         int(r.SourceEPSG.Int32),
		SourceGeometryKind: r.SourceGeometryKind.String,
		InputFeatureCount:  int(r.InputFeatureCount.Int32),
		Params: Params{
			OutputFormat:   formats.Format(r.OutputFormat),
			TargetEPSG:     int(r.TargetEPSG.Int32),
			FixGeometries:  r.FixGeometries,
			NormalizeAttrs: r.NormalizeAttrs,
			Encoding:       formats.Encoding(r.Encoding),
		},
		Status:             Status(r.Status),
		OutputStoragePath:  r.OutputStoragePath.String,
		OutputSizeBytes:    r.OutputSizeBytes.Int64,
		OutputFeatureCount: int(r.OutputFeatureCount.Int32),
		ProcessingDuration: time.Duration(r.ProcessingDurationMs.Int64) * time.Millisecond,
		ErrorMessage:       r.ErrorMessage.String,
		ErrorTrace:         r.ErrorTrace.String,
		CreatedAt:          r.CreatedAt,
	}
	if r.DownloadExpiresAt.Valid {
		j.DownloadExpiresAt = &r.DownloadExpiresAt.Time
	}
	if r.StartedAt.Valid {
		j.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		j.CompletedAt = &r.CompletedAt.Time
	}
	if len(r.QualityReport) > 0 {
		var rep quality.Report
		if err := json.Unmarshal(r.QualityReport, &rep); err != nil {
			return ConversionJob{}, geoerr.Wrap(err, geoerr.ProcessingError, "jobs: decoding stored quality report")
		}
		j.Report = &rep
	}
	return j, nil
}

// GetJob loads one job row by id, or NotFound.
func (s *Store) GetJob(ctx context.Context, id string) (ConversionJob, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM conversion_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return ConversionJob{}, geoerr.New(geoerr.NotFound, "jobs: job %s not found", id)
	}
	if err != nil {
		return ConversionJob{}, geoerr.Wrap(err, geoerr.UpstreamError, "jobs: loading job %s", id)
	}
	return row.toJob()
}

// GetSubscription loads a user's subscription row.
func (s *Store) GetSubscription(ctx context.Context, userID string) (Subscription, error) {
	var row struct {
		UserID     string    `db:"user_id"`
		Plan       string    `db:"plan"`
		Used       int       `db:"conversions_this_month"`
		PeriodStart time.Time `db:"period_start"`
		PeriodEnd   time.Time `db:"period_end"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT * FROM subscriptions WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return Subscription{}, geoerr.New(geoerr.NotFound, "jobs: subscription for user %s not found", userID)
	}
	if err != nil {
		return Subscription{}, geoerr.Wrap(err, geoerr.UpstreamError, "jobs: loading subscription for %s", userID)
	}
	return Subscription{
		UserID:               row.UserID,
		Plan:                 Plan(row.Plan),
		ConversionsThisMonth: row.Used,
		PeriodStart:          row.PeriodStart,
		PeriodEnd:            row.PeriodEnd,
	}, nil
}

// InsertJobWithQuotaCheck is the atomic heart of submit() (spec §4.8
// step 3): in one transaction, reload the subscription row FOR UPDATE,
// refuse with QuotaExhausted if the plan limit would be exceeded,
// increment the counter, and insert the pending job row. Both halves
// commit or neither does, which is what prevents quota bypass under
// concurrent submissions.
func (s *Store) InsertJobWithQuotaCheck(ctx context.Context, job ConversionJob, planLimit int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: beginning submit transaction")
	}
	defer tx.Rollback()

	var used int
	err = tx.GetContext(ctx, &used,
		`SELECT conversions_this_month FROM subscriptions WHERE user_id = $1 FOR UPDATE`, job.UserID)
	if err == sql.ErrNoRows {
		return geoerr.New(geoerr.NotFound, "jobs: subscription for user %s not found", job.UserID)
	}
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: locking subscription row")
	}
	if planLimit >= 0 && used >= planLimit {
		return geoerr.New(geoerr.QuotaExhausted, "jobs: monthly conversion quota exhausted")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET conversions_this_month = conversions_this_month + 1 WHERE user_id = $1`,
		job.UserID,
	); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: incrementing quota counter")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversion_jobs (
			id, user_id, task_id, original_filename, input_storage_path, input_size_bytes,
			output_format, target_epsg, fix_geometries, normalize_attrs, encoding, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.UserID, job.TaskID, job.OriginalFilename, job.InputStoragePath, job.InputSizeBytes,
		string(job.Params.OutputFormat), nullableInt(job.Params.TargetEPSG), job.Params.FixGeometries,
		job.Params.NormalizeAttrs, string(job.Params.Encoding), string(StatusPending),
	); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: inserting job row")
	}

	if err := tx.Commit(); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: committing submit transaction")
	}
	return nil
}

func nullableInt(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// requiredPriorStatus returns the one Status that must currently hold
// for a transition to next to be valid, read off ConversionJob's own
// CanTransitionTo rather than re-deriving the state machine's edges a
// second time in each SQL guard below.
func requiredPriorStatus(next Status) Status {
	for _, from := range []Status{StatusPending, StatusProcessing, StatusSuccess, StatusFailed} {
		if (ConversionJob{Status: from}).CanTransitionTo(next) {
			return from
		}
	}
	return ""
}

// MarkProcessing transitions pending -> processing (worker pickup).
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversion_jobs SET status = $1, started_at = now() WHERE id = $2 AND status = $3`,
		string(StatusProcessing), jobID, string(requiredPriorStatus(StatusProcessing)))
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: marking %s processing", jobID)
	}
	return requireOneRowAffected(res, jobID)
}

// CompletionUpdate is the payload of the single transaction the worker
// commits on success (spec §4.8 "Completion").
type CompletionUpdate struct {
	OutputStoragePath  string
	OutputSizeBytes    int64
	OutputFeatureCount int
	SourceEPSG         int
	SourceFormat       formats.Format
	SourceGeometryKind string
	InputFeatureCount  int
	ProcessingDuration time.Duration
	Report             quality.Report
	DownloadExpiresAt  time.Time
}

func (s *Store) MarkSuccess(ctx context.Context, jobID string, u CompletionUpdate) error {
	reportJSON, err := json.Marshal(u.Report)
	if err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "jobs: encoding quality report")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversion_jobs SET
			status = $1, completed_at = now(),
			output_storage_path = $2, output_size_bytes = $3, output_feature_count = $4,
			source_epsg = $5, source_format = $6, source_geometry_kind = $7, input_feature_count = $8,
			processing_duration_ms = $9, quality_report = $10, download_expires_at = $11
		WHERE id = $12 AND status = $13`,
		string(StatusSuccess), u.OutputStoragePath, u.OutputSizeBytes, u.OutputFeatureCount,
		nullableInt(u.SourceEPSG), string(u.SourceFormat), u.SourceGeometryKind, u.InputFeatureCount,
		u.ProcessingDuration.Milliseconds(), reportJSON, u.DownloadExpiresAt,
		jobID, string(requiredPriorStatus(StatusSuccess)),
	)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: marking %s success", jobID)
	}
	return requireOneRowAffected(res, jobID)
}

func (s *Store) MarkFailed(ctx context.Context, jobID, message, trace string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversion_jobs SET status = $1, completed_at = now(), error_message = $2, error_trace = $3
		WHERE id = $4 AND status = $5`,
		string(StatusFailed), message, trace, jobID, string(requiredPriorStatus(StatusFailed)))
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: marking %s failed", jobID)
	}
	return requireOneRowAffected(res, jobID)
}

// ExpiredArtifacts lists jobs whose artifact is past its TTL and still
// marked success, for the hourly cleanup task (spec §4.8 "Cleanup task").
func (s *Store) ExpiredArtifacts(ctx context.Context) ([]ConversionJob, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM conversion_jobs
		WHERE download_expires_at < now() AND output_storage_path IS NOT NULL AND status = $1`,
		string(StatusSuccess))
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "jobs: listing expired artifacts")
	}
	out := make([]ConversionJob, 0, len(rows))
	for _, r := range rows {
		job, err := r.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// ExpireArtifact nulls the output path and marks the job expired, the
// final step of the cleanup task for one job.
func (s *Store) ExpireArtifact(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversion_jobs SET status = $1, output_storage_path = NULL WHERE id = $2 AND status = $3`,
		string(StatusExpired), jobID, string(requiredPriorStatus(StatusExpired)))
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: expiring job %s", jobID)
	}
	return requireOneRowAffected(res, jobID)
}

func requireOneRowAffected(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "jobs: checking rows affected for %s", jobID)
	}
	if n == 0 {
		return geoerr.New(geoerr.NotReady, "jobs: %s was not in the expected state for this transition", jobID)
	}
	return nil
}
