package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	ListActiveConnections(ctx context.Context, marketplace Type) ([]Connection, error)
	FindActiveConnection(ctx context.Context, userID snowflake.ID, marketplace Type) (*Connection, error)
}
