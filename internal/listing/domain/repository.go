package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

var ErrListingNotFound = errors.New("listing_not_found")

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Listing, error)
	FindByExternalID(ctx context.Context, marketplace marketplacedomain.Type, externalListingID string) (*Listing, error)

	// ListLiveByItemExcluding returns the item's active/pending listings on
	// every marketplace except the one where the sale happened.
	ListLiveByItemExcluding(ctx context.Context, userID, inventoryItemID snowflake.ID, exclude marketplacedomain.Type) ([]Listing, error)

	// ListLiveByItemIn returns the item's active/pending listings restricted
	// to the given marketplaces.
	ListLiveByItemIn(ctx context.Context, userID, inventoryItemID snowflake.ID, marketplaces []marketplacedomain.Type) ([]Listing, error)

	// ListPollable returns a bounded batch of a user's active/pending
	// listings on one marketplace, most recently listed first.
	ListPollable(ctx context.Context, userID snowflake.ID, marketplace marketplacedomain.Type, lookback time.Duration, limit int) ([]Listing, error)

	MarkSold(ctx context.Context, id snowflake.ID, salePrice *float64, saleDate *time.Time) error
	MarkDelisted(ctx context.Context, id snowflake.ID, delistedAt time.Time) error
}
