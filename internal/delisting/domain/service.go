package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	saleeventdomain "github.com/smallbiznis/crosslist/internal/saleevent/domain"
)

// MarketplaceResult is the discriminated outcome of one per-marketplace
// delist attempt. Exactly one of DelistedAt/Err is set.
type MarketplaceResult struct {
	Marketplace      marketplacedomain.Type
	ListingID        snowflake.ID
	Success          bool
	DelistedAt       *time.Time
	ExternalResponse json.RawMessage
	Err              *DelistingError
	Duration         time.Duration
}

// JobExecutionResult summarizes one ExecuteJob run.
type JobExecutionResult struct {
	JobID         snowflake.ID
	Status        JobStatus
	TotalTargeted int
	TotalDelisted int
	TotalFailed   int
	Results       []MarketplaceResult
	Message       string
}

// Engine executes delisting jobs. Precondition violations (unknown job,
// wrong state, unconfirmed, not due) surface as errors; execution faults
// are folded into the returned result and the job's error log.
type Engine interface {
	ExecuteJob(ctx context.Context, jobID snowflake.ID) (*JobExecutionResult, error)
}

// Scheduler derives delisting jobs from processed sale events.
type Scheduler interface {
	CreateJobFromEvent(ctx context.Context, event *saleeventdomain.SaleEvent) (*DelistingJob, error)
}

// RetryResult aggregates one retryFailedDelistings pass.
type RetryResult struct {
	JobsRetried int
	JobsSkipped int
	Errors      []string
}

// ProcessResult aggregates one processPendingJobs pass.
type ProcessResult struct {
	JobsProcessed int
	JobsFailed    int
	Errors        []string
}

// RetryManager re-runs failed work bounded by each job's retry ceiling.
// Neither method aborts on a single job's failure.
type RetryManager interface {
	RetryFailedDelistings(ctx context.Context, maxJobs int) *RetryResult
	ProcessPendingJobs(ctx context.Context) *ProcessResult
	SurfaceStuckJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

type Repository interface {
	Create(ctx context.Context, job *DelistingJob) error
	FindByID(ctx context.Context, id snowflake.ID) (*DelistingJob, error)
	Update(ctx context.Context, job *DelistingJob) error

	// MarkProcessing transitions pending to processing atomically; a false
	// return means another worker claimed the job first.
	MarkProcessing(ctx context.Context, id snowflake.ID, startedAt time.Time) (bool, error)

	// Confirm stamps user_confirmed_at on a pending job owned by userID.
	Confirm(ctx context.Context, id, userID snowflake.ID, confirmedAt time.Time) (*DelistingJob, error)

	// ListDue returns pending jobs whose scheduled_for has passed and that
	// are not blocked on user confirmation, oldest scheduled first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]DelistingJob, error)

	// ListRetryable returns failed/partially_failed jobs below their retry
	// ceiling, oldest updated first.
	ListRetryable(ctx context.Context, limit int) ([]DelistingJob, error)

	// ResetForRetry bumps retry_count and returns the job to pending.
	ResetForRetry(ctx context.Context, id snowflake.ID, retryCount int) error

	// CountStuckProcessing counts jobs sitting in processing since before
	// the cutoff. They are surfaced, never auto-cancelled.
	CountStuckProcessing(ctx context.Context, cutoff time.Time) (int, error)
}
