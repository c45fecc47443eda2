package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/delisting/domain"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

func Provide(db *gorm.DB, clk clock.Clock) domain.Repository {
	return &repo{db: db, clock: clk}
}

func (r *repo) Create(ctx context.Context, job *domain.DelistingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.DelistingJob, error) {
	var job domain.DelistingJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) Update(ctx context.Context, job *domain.DelistingJob) error {
	job.UpdatedAt = r.clock.Now()
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *repo) MarkProcessing(ctx context.Context, id snowflake.ID, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.DelistingJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]any{
			"status":     domain.JobStatusProcessing,
			"started_at": startedAt,
			"updated_at": r.clock.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Confirm(ctx context.Context, id, userID snowflake.ID, confirmedAt time.Time) (*domain.DelistingJob, error) {
	job, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrJobNotOwned
	}
	if !job.RequiresUserConfirmation || job.UserConfirmedAt != nil {
		return nil, domain.ErrJobAlreadyConfirmed
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobNotPending
	}

	result := r.db.WithContext(ctx).
		Model(&domain.DelistingJob{}).
		Where("id = ? AND user_id = ? AND status = ? AND user_confirmed_at IS NULL", id, userID, domain.JobStatusPending).
		Updates(map[string]any{
			"user_confirmed_at": confirmedAt,
			"updated_at":        r.clock.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrJobAlreadyConfirmed
	}
	return r.FindByID(ctx, id)
}

func (r *repo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DelistingJob, error) {
	var jobs []domain.DelistingJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", domain.JobStatusPending, now).
		Where("requires_user_confirmation = ? OR user_confirmed_at IS NOT NULL", false).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ListRetryable(ctx context.Context, limit int) ([]domain.DelistingJob, error) {
	var jobs []domain.DelistingJob
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusFailed, domain.JobStatusPartiallyFailed}).
		Where("retry_count < max_retries").
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ResetForRetry(ctx context.Context, id snowflake.ID, retryCount int) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DelistingJob{}).
		Where("id = ? AND status IN ?", id, []domain.JobStatus{domain.JobStatusFailed, domain.JobStatusPartiallyFailed}).
		Updates(map[string]any{
			"status":      domain.JobStatusPending,
			"retry_count": retryCount,
			"updated_at":  r.clock.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *repo) CountStuckProcessing(ctx context.Context, cutoff time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.DelistingJob{}).
		Where("status = ? AND started_at < ?", domain.JobStatusProcessing, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
