// Package jobs implements C8: the durable ConversionJob record, the
// per-tenant quota gate, the dispatch queue, and the worker pool that
// drives pkg/conversion.Process to completion. It plays the role the
// original's Celery task + SQLAlchemy models played.
package jobs

import (
	"time"

	"github.com/geoconvert/geoconvert/pkg/formats"
	"github.com/geoconvert/geoconvert/pkg/quality"
)

// Status is a ConversionJob's position in the state machine of spec
// §4.8. Valid transitions: pending -> processing -> success|failed,
// success -> expired. No other transition is permitted.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Plan is a subscription tier tag.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// User is the identity ConversionJobs and Subscriptions are scoped to.
type User struct {
	ID           string
	CredentialsHash string
	Active       bool
	CreatedAt    time.Time
}

// Subscription is the exactly-one relation to User that tracks monthly
// quota consumption (spec §3).
type Subscription struct {
	UserID              string
	Plan                Plan
	ConversionsThisMonth int
	PeriodStart         time.Time
	PeriodEnd           time.Time
}

// Params are the user-supplied conversion parameters captured on a job
// at submission time (spec §3 "Parameters").
type Params struct {
	OutputFormat   formats.Format
	TargetEPSG     int
	FixGeometries  bool
	NormalizeAttrs bool
	Encoding       formats.Encoding
}

// ConversionJob is the central durable record of spec §3.
type ConversionJob struct {
	ID            string
	UserID        string
	TaskID        string

	OriginalFilename  string
	InputStoragePath  string
	InputSizeBytes    int64
	SourceFormat      formats.Format
	SourceEPSG        int
	SourceGeometryKind string
	InputFeatureCount int

	Params Params

	Status              Status
	OutputStoragePath   string
	OutputSizeBytes     int64
	OutputFeatureCount  int
	ProcessingDuration  time.Duration
	Report              *quality.Report
	DownloadExpiresAt   *time.Time
	ErrorMessage        string
	ErrorTrace          string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// CanTransitionTo reports whether moving from j.Status to next is one
// of the edges spec §4.8 permits.
func (j ConversionJob) CanTransitionTo(next Status) bool {
	switch j.Status {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusSuccess || next == StatusFailed
	case StatusSuccess:
		return next == StatusExpired
	default:
		return false
	}
}
