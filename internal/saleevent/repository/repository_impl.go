package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

func Provide(db *gorm.DB, clk clock.Clock) domain.Repository {
	return &repo{db: db, clock: clk}
}

func (r *repo) Insert(ctx context.Context, event *domain.SaleEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repo) FindByHash(ctx context.Context, eventHash string) (*domain.SaleEvent, error) {
	var event domain.SaleEvent
	err := r.db.WithContext(ctx).Where("event_hash = ?", eventHash).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.SaleEvent, error) {
	var event domain.SaleEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkProcessed(ctx context.Context, id snowflake.ID) error {
	res := r.db.WithContext(ctx).
		Model(&domain.SaleEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]any{
			"processed":  true,
			"updated_at": r.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
