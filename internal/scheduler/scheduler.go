package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/crosslist/internal/clock"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"github.com/smallbiznis/crosslist/internal/poller"
	"github.com/smallbiznis/crosslist/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobPollSales      = "poll_sales"
	JobProcessPending = "process_pending_jobs"
	JobRetryFailed    = "retry_failed_jobs"
	JobRecoverySweep  = "recovery_sweep"
	runLockKey        = "scheduler:leader"
)

// SalePoller sweeps every poll-enabled marketplace for completed sales.
type SalePoller interface {
	PollAllMarketplaces(ctx context.Context) map[marketplacedomain.Type]*poller.MarketplaceResult
}

type Params struct {
	fx.In

	Cfg    Config
	Log    *zap.Logger
	Clock  clock.Clock
	Poller SalePoller
	Retry  delistingdomain.RetryManager
	Locker *ratelimit.Locker `optional:"true"`
}

// Scheduler drives the pipeline's background jobs: polling for sales,
// executing due delisting jobs, retrying failed ones and surfacing jobs
// stuck in processing.
type Scheduler struct {
	cfg    Config
	log    *zap.Logger
	clock  clock.Clock
	poller SalePoller
	retry  delistingdomain.RetryManager
	locker *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil {
		return nil, errors.New("scheduler: logger is required")
	}
	if p.Clock == nil {
		return nil, errors.New("scheduler: clock is required")
	}
	if p.Poller == nil {
		return nil, errors.New("scheduler: poller is required")
	}
	if p.Retry == nil {
		return nil, errors.New("scheduler: retry manager is required")
	}
	return &Scheduler{
		cfg:    p.Cfg.withDefaults(),
		log:    p.Log.Named("scheduler"),
		clock:  p.Clock,
		poller: p.Poller,
		retry:  p.Retry,
		locker: p.Locker,
	}, nil
}

type job struct {
	Name    string
	Timeout time.Duration
	Run     func(context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{Name: JobPollSales, Timeout: s.cfg.PollTimeout, Run: s.runPollSales},
		{Name: JobProcessPending, Timeout: s.cfg.JobTimeout, Run: s.runProcessPending},
		{Name: JobRetryFailed, Timeout: s.cfg.JobTimeout, Run: s.runRetryFailed},
		{Name: JobRecoverySweep, Timeout: s.cfg.JobTimeout, Run: s.runRecoverySweep},
	}
}

// RunOnce executes every enabled job a single time and joins their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.Name) {
			continue
		}
		if err := s.runJob(ctx, j.Name, j.Timeout, j.Run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunForever loops RunOnce on the configured interval until ctx is done.
// When a distributed lock is configured, only the instance holding it runs
// the sweep.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.cfg.RunInterval
	s.log.Info("scheduler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	nextRun := time.Now().Add(interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			if lag := now.Sub(nextRun); lag > 0 {
				metrics.Scheduler().ObserveRunLoopLag(lag)
			}
			nextRun = now.Add(interval)

			if err := s.runLocked(ctx); err != nil {
				s.log.Warn("scheduler sweep finished with errors", zap.Error(err))
			}
		}
	}
}

// runLocked wraps RunOnce in the leader lock when one is configured. Lock
// backend errors fail open so a Redis outage does not halt the pipeline.
func (s *Scheduler) runLocked(ctx context.Context) error {
	if s.locker == nil {
		return s.RunOnce(ctx)
	}

	token, acquired, err := s.locker.TryLock(ctx, runLockKey, s.cfg.RunInterval)
	if err != nil {
		s.log.Warn("scheduler lock check failed, running without lock", zap.Error(err))
		return s.RunOnce(ctx)
	}
	if !acquired {
		metrics.Scheduler().IncLockDenied()
		s.log.Debug("scheduler sweep skipped, another instance holds the lock")
		return nil
	}
	defer func() {
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), runLockKey, token); releaseErr != nil {
			s.log.Warn("failed to release scheduler lock", zap.Error(releaseErr))
		}
	}()

	return s.RunOnce(ctx)
}

// runJob executes fn under a per-job timeout and records run metrics.
// Deadline and cancellation errors count as soft timeouts, not failures.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	schedMetrics := metrics.Scheduler()
	schedMetrics.IncJobRun(name)

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("scheduler job hit its deadline",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
		)
		return nil
	}
	schedMetrics.IncJobError(name, err)
	s.log.Error("scheduler job failed", zap.String("job", name), zap.Error(err))
	return err
}

// isJobEnabled reports whether a job should run. An empty EnabledJobs list
// enables everything, which is the monolith default.
func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if enabled == name {
			return true
		}
	}
	return false
}

func (s *Scheduler) runPollSales(ctx context.Context) error {
	results := s.poller.PollAllMarketplaces(ctx)

	var usersPolled, listingsChecked, salesDetected, errorCount int
	for _, result := range results {
		if result == nil || result.Skipped {
			continue
		}
		usersPolled += result.UsersPolled
		listingsChecked += result.ListingsChecked
		salesDetected += result.SalesDetected
		errorCount += len(result.Errors)
	}

	s.log.Info("poll sweep finished",
		zap.Int("marketplaces", len(results)),
		zap.Int("users_polled", usersPolled),
		zap.Int("listings_checked", listingsChecked),
		zap.Int("sales_detected", salesDetected),
		zap.Int("error_count", errorCount),
	)
	return ctx.Err()
}

func (s *Scheduler) runProcessPending(ctx context.Context) error {
	result := s.retry.ProcessPendingJobs(ctx)
	if result.JobsProcessed > 0 || result.JobsFailed > 0 {
		s.log.Info("pending jobs processed",
			zap.Int("processed", result.JobsProcessed),
			zap.Int("failed", result.JobsFailed),
		)
	}
	return ctx.Err()
}

func (s *Scheduler) runRetryFailed(ctx context.Context) error {
	result := s.retry.RetryFailedDelistings(ctx, s.cfg.RetryBatchSize)
	if result.JobsRetried > 0 || len(result.Errors) > 0 {
		s.log.Info("failed jobs retried",
			zap.Int("retried", result.JobsRetried),
			zap.Int("skipped", result.JobsSkipped),
			zap.Int("error_count", len(result.Errors)),
		)
	}
	return ctx.Err()
}

func (s *Scheduler) runRecoverySweep(ctx context.Context) error {
	stuck, err := s.retry.SurfaceStuckJobs(ctx, s.cfg.RecoveryThreshold)
	if err != nil {
		return err
	}
	if stuck > 0 {
		s.log.Warn("jobs stuck in processing",
			zap.Int("count", stuck),
			zap.Duration("older_than", s.cfg.RecoveryThreshold),
		)
	}
	return nil
}
