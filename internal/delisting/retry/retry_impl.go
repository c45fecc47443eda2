package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/delisting/domain"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// processBatchSize bounds concurrent job executions per batch; the
	// cooldown between batches keeps marketplace APIs from seeing bursts.
	processBatchSize     = 5
	processBatchCooldown = time.Second
	pendingBatchLimit    = 50

	retryBackoffCap = time.Hour
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Jobs   domain.Repository
	Engine domain.Engine
	Audit  auditdomain.Service
}

type Manager struct {
	log    *zap.Logger
	clock  clock.Clock
	jobs   domain.Repository
	engine domain.Engine
	audit  auditdomain.Service
	sleep  func(time.Duration)
}

func NewManager(p Params) domain.RetryManager {
	return &Manager{
		log:    p.Log.Named("delisting.retry"),
		clock:  p.Clock,
		jobs:   p.Jobs,
		engine: p.Engine,
		audit:  p.Audit,
		sleep:  time.Sleep,
	}
}

// RetryFailedDelistings re-queues failed and partially_failed jobs below
// their retry ceiling, oldest first, honoring each job's error-class
// backoff. One job's failure never aborts the sweep.
func (m *Manager) RetryFailedDelistings(ctx context.Context, maxJobs int) *domain.RetryResult {
	result := &domain.RetryResult{}
	if maxJobs <= 0 {
		maxJobs = pendingBatchLimit
	}

	jobs, err := m.jobs.ListRetryable(ctx, maxJobs)
	if err != nil {
		result.Errors = append(result.Errors, "list retryable jobs: "+err.Error())
		return result
	}

	now := m.clock.Now()
	for i := range jobs {
		job := &jobs[i]

		if wait := retryBackoff(job); now.Sub(job.UpdatedAt) < wait {
			result.JobsSkipped++
			continue
		}

		nextRetry := job.RetryCount + 1
		if err := m.jobs.ResetForRetry(ctx, job.ID, nextRetry); err != nil {
			result.Errors = append(result.Errors, job.ID.String()+": "+err.Error())
			continue
		}

		jobID := job.ID.String()
		_ = m.audit.AuditLog(ctx, job.UserID, auditdomain.ActorTypeScheduler, nil,
			auditdomain.ActionJobRetried, auditdomain.TargetTypeDelistingJob, &jobID,
			map[string]any{"retry_count": nextRetry, "max_retries": job.MaxRetries})
		m.log.Info("retrying delisting job",
			zap.String("job_id", jobID),
			zap.Int("retry_count", nextRetry),
			zap.Int("max_retries", job.MaxRetries),
		)

		if _, err := m.engine.ExecuteJob(ctx, job.ID); err != nil {
			if !isPreconditionError(err) {
				result.Errors = append(result.Errors, jobID+": "+err.Error())
				continue
			}
		}
		result.JobsRetried++
	}
	return result
}

// ProcessPendingJobs executes due pending jobs in bounded concurrent
// batches with a cooldown between batches.
func (m *Manager) ProcessPendingJobs(ctx context.Context) *domain.ProcessResult {
	result := &domain.ProcessResult{}

	due, err := m.jobs.ListDue(ctx, m.clock.Now(), pendingBatchLimit)
	if err != nil {
		result.Errors = append(result.Errors, "list due jobs: "+err.Error())
		return result
	}
	if len(due) == 0 {
		return result
	}

	var mu sync.Mutex
	for start := 0; start < len(due); start += processBatchSize {
		end := start + processBatchSize
		if end > len(due) {
			end = len(due)
		}

		var wg sync.WaitGroup
		for _, job := range due[start:end] {
			wg.Add(1)
			go func(job domain.DelistingJob) {
				defer wg.Done()
				execResult, err := m.engine.ExecuteJob(ctx, job.ID)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil && isPreconditionError(err):
					// Claimed by another worker or confirmation arrived
					// between listing and execution.
				case err != nil:
					result.JobsFailed++
					result.Errors = append(result.Errors, job.ID.String()+": "+err.Error())
				case execResult.Status == domain.JobStatusFailed:
					result.JobsFailed++
					result.JobsProcessed++
				default:
					result.JobsProcessed++
				}
			}(job)
		}
		wg.Wait()

		if end < len(due) {
			m.sleep(processBatchCooldown)
		}
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled: "+ctx.Err().Error())
			break
		}
	}
	return result
}

// SurfaceStuckJobs counts jobs stuck in processing longer than olderThan.
// They are reported for operator attention, never auto-cancelled.
func (m *Manager) SurfaceStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.clock.Now().Add(-olderThan)
	count, err := m.jobs.CountStuckProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.Pipeline().SetJobsStuck(count)
	if count > 0 {
		m.log.Warn("delisting jobs stuck in processing",
			zap.Int("count", count),
			zap.Duration("older_than", olderThan),
		)
	}
	return count, nil
}

// retryBackoff derives the wait before the next attempt from the most
// punitive error class in the job's error log, doubled per completed
// retry and capped.
func retryBackoff(job *domain.DelistingJob) time.Duration {
	base := 45 * time.Second
	for _, detail := range job.ErrorLog.Data() {
		if classBase := backoffBase(detail.Code); classBase > base {
			base = classBase
		}
	}
	wait := base << job.RetryCount
	if wait > retryBackoffCap || wait <= 0 {
		wait = retryBackoffCap
	}
	return wait
}

func backoffBase(code domain.ErrorCode) time.Duration {
	switch code {
	case domain.CodeRateLimited:
		return 120 * time.Second
	case domain.CodeAPIUnavailable:
		return 60 * time.Second
	case domain.CodeTimeout, domain.CodeNetworkError:
		return 30 * time.Second
	default:
		return 45 * time.Second
	}
}

func isPreconditionError(err error) bool {
	return errors.Is(err, domain.ErrJobNotFound) ||
		errors.Is(err, domain.ErrJobNotPending) ||
		errors.Is(err, domain.ErrConfirmationRequired) ||
		errors.Is(err, domain.ErrJobNotDue)
}
