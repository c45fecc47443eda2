package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/listing/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

func Provide(db *gorm.DB, clk clock.Clock) domain.Repository {
	return &repo{db: db, clock: clk}
}

var liveStatuses = []domain.Status{domain.StatusActive, domain.StatusPending}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repo) FindByExternalID(ctx context.Context, marketplace marketplacedomain.Type, externalListingID string) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.db.WithContext(ctx).
		Where("marketplace = ? AND external_listing_id = ?", marketplace, externalListingID).
		First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repo) ListLiveByItemExcluding(ctx context.Context, userID, inventoryItemID snowflake.ID, exclude marketplacedomain.Type) ([]domain.Listing, error) {
	var listings []domain.Listing
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND inventory_item_id = ? AND marketplace <> ? AND status IN ?",
			userID, inventoryItemID, exclude, liveStatuses).
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repo) ListLiveByItemIn(ctx context.Context, userID, inventoryItemID snowflake.ID, marketplaces []marketplacedomain.Type) ([]domain.Listing, error) {
	if len(marketplaces) == 0 {
		return nil, nil
	}
	var listings []domain.Listing
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND inventory_item_id = ? AND marketplace IN ? AND status IN ?",
			userID, inventoryItemID, marketplaces, liveStatuses).
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repo) ListPollable(ctx context.Context, userID snowflake.ID, marketplace marketplacedomain.Type, lookback time.Duration, limit int) ([]domain.Listing, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND marketplace = ? AND status IN ?", userID, marketplace, liveStatuses)
	if lookback > 0 {
		query = query.Where("updated_at >= ?", r.clock.Now().Add(-lookback))
	}

	var listings []domain.Listing
	err := query.Order("created_at DESC").Limit(limit).Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *repo) MarkSold(ctx context.Context, id snowflake.ID, salePrice *float64, saleDate *time.Time) error {
	updates := map[string]any{
		"status":     domain.StatusSold,
		"updated_at": r.clock.Now(),
	}
	if salePrice != nil {
		updates["sale_price"] = *salePrice
	}
	if saleDate != nil {
		updates["sale_date"] = saleDate.UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("id = ? AND status IN ?", id, liveStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *repo) MarkDelisted(ctx context.Context, id snowflake.ID, delistedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("id = ? AND status IN ?", id, liveStatuses).
		Updates(map[string]any{
			"status":      domain.StatusCancelled,
			"delisted_at": delistedAt.UTC(),
			"updated_at":  r.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}
