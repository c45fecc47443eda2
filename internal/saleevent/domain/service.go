package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUnsupportedMarketplace = errors.New("unsupported_marketplace")
	ErrInvalidPayload         = errors.New("invalid_payload")
	ErrEventNotFound          = errors.New("event_not_found")
)

// RecordRequest links a normalized draft to its owner.
type RecordRequest struct {
	Draft           *Draft
	UserID          snowflake.ID
	ListingID       *snowflake.ID
	InventoryItemID *snowflake.ID
	Source          string
	Verified        bool
}

type Service interface {
	RecordEvent(ctx context.Context, req RecordRequest) (*RecordResult, error)
	MarkProcessed(ctx context.Context, id snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, event *SaleEvent) error
	FindByHash(ctx context.Context, eventHash string) (*SaleEvent, error)
	FindByID(ctx context.Context, id snowflake.ID) (*SaleEvent, error)
	MarkProcessed(ctx context.Context, id snowflake.ID) error
}
