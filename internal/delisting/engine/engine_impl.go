package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	"github.com/smallbiznis/crosslist/internal/circuitbreaker"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/delisting/domain"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// endReason is sent to every marketplace when the item sold elsewhere.
const endReason = "sold_on_another_platform"

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Jobs        domain.Repository
	Listings    listingdomain.Repository
	Connections marketplacedomain.Repository
	Registry    *adapters.Registry
	Breaker     circuitbreaker.Breaker
	Audit       auditdomain.Service
}

type Engine struct {
	log         *zap.Logger
	clock       clock.Clock
	jobs        domain.Repository
	listings    listingdomain.Repository
	connections marketplacedomain.Repository
	registry    *adapters.Registry
	breaker     circuitbreaker.Breaker
	audit       auditdomain.Service
}

func NewEngine(p Params) domain.Engine {
	return &Engine{
		log:         p.Log.Named("delisting.engine"),
		clock:       p.Clock,
		jobs:        p.Jobs,
		listings:    p.Listings,
		connections: p.Connections,
		registry:    p.Registry,
		breaker:     p.Breaker,
		audit:       p.Audit,
	}
}

// ExecuteJob runs one delisting job to a terminal status. Precondition
// violations return sentinel errors and leave the job untouched; once the
// job is claimed every fault is absorbed into its error log so the job
// always lands in completed, partially_failed or failed.
func (e *Engine) ExecuteJob(ctx context.Context, jobID snowflake.ID) (*domain.JobExecutionResult, error) {
	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobNotPending
	}
	if job.AwaitingConfirmation() {
		return nil, domain.ErrConfirmationRequired
	}
	now := e.clock.Now()
	if job.ScheduledFor.After(now) {
		return nil, domain.ErrJobNotDue
	}

	claimed, err := e.jobs.MarkProcessing(ctx, job.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.ErrJobNotPending
	}
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now

	listings, err := e.listings.ListLiveByItemIn(ctx, job.UserID, job.InventoryItemID, job.TargetedTypes())
	if err != nil {
		return e.failJob(ctx, job, "failed to load live listings: "+err.Error()), nil
	}

	if len(listings) == 0 {
		completedAt := e.clock.Now()
		job.Status = domain.JobStatusCompleted
		job.CompletedAt = &completedAt
		job.TotalDelisted = 0
		job.TotalFailed = 0
		if err := e.jobs.Update(ctx, job); err != nil {
			e.log.Error("failed to persist completed job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		metrics.Pipeline().IncJobFinished(string(domain.JobStatusCompleted))
		return &domain.JobExecutionResult{
			JobID:   job.ID,
			Status:  domain.JobStatusCompleted,
			Message: "no live listings remained on targeted marketplaces",
		}, nil
	}

	targets := firstListingPerMarketplace(listings)

	results := make([]domain.MarketplaceResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target listingdomain.Listing) {
			defer wg.Done()
			results[i] = e.delistFromMarketplace(ctx, job, target)
		}(i, target)
	}
	wg.Wait()

	return e.finishJob(ctx, job, results), nil
}

// delistFromMarketplace attempts one marketplace and never returns a raw
// adapter error.
func (e *Engine) delistFromMarketplace(ctx context.Context, job *domain.DelistingJob, listing listingdomain.Listing) domain.MarketplaceResult {
	start := e.clock.Now()
	result := domain.MarketplaceResult{
		Marketplace: listing.Marketplace,
		ListingID:   listing.ID,
	}

	fail := func(err error) domain.MarketplaceResult {
		result.Err = domain.MapAdapterError(err)
		result.Duration = e.clock.Now().Sub(start)
		e.recordOutcome(ctx, job, &result)
		return result
	}

	breakerKey := circuitbreaker.DelistKey(string(listing.Marketplace))
	allowed, err := e.breaker.CanExecute(ctx, breakerKey)
	if err != nil {
		e.log.Warn("breaker check failed, allowing attempt",
			zap.String("key", breakerKey), zap.Error(err))
		allowed = true
	}
	if !allowed {
		return fail(&domain.DelistingError{
			Code:       domain.CodeAPIUnavailable,
			Message:    "circuit breaker open for " + string(listing.Marketplace),
			RetryAfter: 60 * time.Second,
		})
	}

	conn, err := e.connections.FindActiveConnection(ctx, job.UserID, listing.Marketplace)
	if err != nil {
		return fail(err)
	}
	adapter, err := e.registry.NewAdapterForConnection(conn)
	if err != nil {
		return fail(err)
	}

	resp, err := adapter.EndListing(ctx, listing.ExternalListingID, marketplacedomain.EndListingRequest{
		Reason:      endReason,
		SoldToBuyer: true,
	})
	if err != nil {
		mapped := domain.MapAdapterError(err)
		if transient(mapped.Code) {
			if berr := e.breaker.RecordFailure(ctx, breakerKey); berr != nil {
				e.log.Warn("breaker record failure", zap.String("key", breakerKey), zap.Error(berr))
			}
		}
		return fail(mapped)
	}
	if berr := e.breaker.RecordSuccess(ctx, breakerKey); berr != nil {
		e.log.Warn("breaker record success", zap.String("key", breakerKey), zap.Error(berr))
	}

	endedAt := resp.EndedAt
	if endedAt.IsZero() {
		endedAt = e.clock.Now()
	}
	if err := e.listings.MarkDelisted(ctx, listing.ID, endedAt); err != nil && !errors.Is(err, listingdomain.ErrListingNotFound) {
		e.log.Warn("delisted on marketplace but local listing update failed",
			zap.String("listing_id", listing.ID.String()), zap.Error(err))
	}

	result.Success = true
	result.DelistedAt = &endedAt
	result.ExternalResponse = resp.ExternalResponse
	result.Duration = e.clock.Now().Sub(start)
	e.recordOutcome(ctx, job, &result)
	return result
}

func (e *Engine) recordOutcome(ctx context.Context, job *domain.DelistingJob, result *domain.MarketplaceResult) {
	marketplace := string(result.Marketplace)
	listingID := result.ListingID.String()

	if result.Success {
		metrics.Pipeline().IncDelistAttempt(marketplace, "success")
		metrics.Pipeline().ObserveDelistDuration(marketplace, result.Duration)
		_ = e.audit.AuditLog(ctx, job.UserID, auditdomain.ActorTypeSystem, nil,
			auditdomain.ActionDelistSuccess, auditdomain.TargetTypeListing, &listingID,
			map[string]any{
				"job_id":      job.ID.String(),
				"marketplace": marketplace,
				"duration_ms": result.Duration.Milliseconds(),
			})
		return
	}

	metrics.Pipeline().IncDelistAttempt(marketplace, "failure")
	metrics.Pipeline().ObserveDelistDuration(marketplace, result.Duration)
	_ = e.audit.AuditLog(ctx, job.UserID, auditdomain.ActorTypeSystem, nil,
		auditdomain.ActionDelistFailure, auditdomain.TargetTypeListing, &listingID,
		map[string]any{
			"job_id":      job.ID.String(),
			"marketplace": marketplace,
			"error_code":  string(result.Err.Code),
			"permanent":   result.Err.Permanent,
		})
	e.log.Warn("delist attempt failed",
		zap.String("job_id", job.ID.String()),
		zap.String("marketplace", marketplace),
		zap.String("code", string(result.Err.Code)),
		zap.String("message", result.Err.Message),
	)
}

func (e *Engine) finishJob(ctx context.Context, job *domain.DelistingJob, results []domain.MarketplaceResult) *domain.JobExecutionResult {
	completedAt := e.clock.Now()

	completed := make([]string, 0, len(results))
	failed := make([]string, 0, len(results))
	successLog := map[string]domain.SuccessDetail{}
	errorLog := map[string]domain.ErrorDetail{}

	for _, r := range results {
		tag := string(r.Marketplace)
		if r.Success {
			completed = append(completed, tag)
			successLog[tag] = domain.SuccessDetail{
				DelistedAt:       *r.DelistedAt,
				DurationMs:       r.Duration.Milliseconds(),
				ExternalResponse: r.ExternalResponse,
			}
			continue
		}
		failed = append(failed, tag)
		errorLog[tag] = domain.ErrorDetail{
			Code:              r.Err.Code,
			Message:           r.Err.Message,
			Permanent:         r.Err.Permanent,
			RetryAfterSeconds: int64(r.Err.RetryAfter / time.Second),
			DurationMs:        r.Duration.Milliseconds(),
		}
	}

	switch {
	case len(failed) == 0:
		job.Status = domain.JobStatusCompleted
	case len(completed) == 0:
		job.Status = domain.JobStatusFailed
	default:
		job.Status = domain.JobStatusPartiallyFailed
	}
	job.MarketplacesCompleted = datatypes.NewJSONSlice(completed)
	job.MarketplacesFailed = datatypes.NewJSONSlice(failed)
	job.SuccessLog = datatypes.NewJSONType(successLog)
	job.ErrorLog = datatypes.NewJSONType(errorLog)
	job.TotalDelisted = len(completed)
	job.TotalFailed = len(failed)
	job.CompletedAt = &completedAt

	if err := e.jobs.Update(ctx, job); err != nil {
		e.log.Error("failed to persist finished job",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	metrics.Pipeline().IncJobFinished(string(job.Status))
	jobID := job.ID.String()
	_ = e.audit.AuditLog(ctx, job.UserID, auditdomain.ActorTypeSystem, nil,
		auditdomain.ActionJobCompleted, auditdomain.TargetTypeDelistingJob, &jobID,
		map[string]any{
			"status":         string(job.Status),
			"total_delisted": job.TotalDelisted,
			"total_failed":   job.TotalFailed,
		})

	e.log.Info("delisting job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(job.Status)),
		zap.Int("delisted", job.TotalDelisted),
		zap.Int("failed", job.TotalFailed),
	)
	return &domain.JobExecutionResult{
		JobID:         job.ID,
		Status:        job.Status,
		TotalTargeted: len(results),
		TotalDelisted: job.TotalDelisted,
		TotalFailed:   job.TotalFailed,
		Results:       results,
	}
}

// failJob lands a claimed job in failed when execution cannot even reach
// the per-marketplace fan-out.
func (e *Engine) failJob(ctx context.Context, job *domain.DelistingJob, message string) *domain.JobExecutionResult {
	completedAt := e.clock.Now()
	job.Status = domain.JobStatusFailed
	job.CompletedAt = &completedAt
	job.ErrorLog = datatypes.NewJSONType(map[string]domain.ErrorDetail{
		"_job": {Code: domain.CodeInternalError, Message: message},
	})
	if err := e.jobs.Update(ctx, job); err != nil {
		e.log.Error("failed to persist failed job",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
	metrics.Pipeline().IncJobFinished(string(domain.JobStatusFailed))
	e.log.Error("delisting job failed before execution",
		zap.String("job_id", job.ID.String()), zap.String("message", message))
	return &domain.JobExecutionResult{
		JobID:   job.ID,
		Status:  domain.JobStatusFailed,
		Message: message,
	}
}

// transient codes count against the marketplace breaker; permanent
// listing-level faults do not.
func transient(code domain.ErrorCode) bool {
	switch code {
	case domain.CodeRateLimited, domain.CodeTimeout, domain.CodeNetworkError, domain.CodeAPIUnavailable:
		return true
	default:
		return false
	}
}

// firstListingPerMarketplace keeps one listing per marketplace. An item is
// cross-listed at most once per marketplace; duplicates indicate stale
// rows and only the first is attempted.
func firstListingPerMarketplace(listings []listingdomain.Listing) []listingdomain.Listing {
	seen := make(map[marketplacedomain.Type]struct{}, len(listings))
	out := make([]listingdomain.Listing, 0, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.Marketplace]; ok {
			continue
		}
		seen[l.Marketplace] = struct{}{}
		out = append(out, l)
	}
	return out
}
