package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) ListActiveConnections(ctx context.Context, marketplace domain.Type) ([]domain.Connection, error) {
	var connections []domain.Connection
	err := r.db.WithContext(ctx).
		Where("marketplace = ? AND is_active = ?", marketplace, true).
		Order("user_id").
		Find(&connections).Error
	if err != nil {
		return nil, err
	}
	return connections, nil
}

func (r *repo) FindActiveConnection(ctx context.Context, userID snowflake.ID, marketplace domain.Type) (*domain.Connection, error) {
	var connection domain.Connection
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND marketplace = ? AND is_active = ?", userID, marketplace, true).
		First(&connection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &connection, nil
}
