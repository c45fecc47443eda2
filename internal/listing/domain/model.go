package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"gorm.io/gorm"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
)

// Listing is one marketplace posting of an inventory item.
type Listing struct {
	ID                snowflake.ID           `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID           `json:"user_id" gorm:"not null;index"`
	InventoryItemID   snowflake.ID           `json:"inventory_item_id" gorm:"not null;index:ix_listings_item_marketplace,priority:1"`
	Marketplace       marketplacedomain.Type `json:"marketplace" gorm:"type:text;not null;index:ix_listings_item_marketplace,priority:2"`
	ExternalListingID string                 `json:"external_listing_id" gorm:"type:text;not null;index:ix_listings_marketplace_external"`
	Title             string                 `json:"title" gorm:"type:text"`
	Price             float64                `json:"price" gorm:"type:numeric(12,2);not null"`
	Currency          string                 `json:"currency" gorm:"type:text;not null;default:USD"`
	Status            Status                 `json:"status" gorm:"type:text;not null;default:active;index"`
	SalePrice         *float64               `json:"sale_price,omitempty" gorm:"type:numeric(12,2)"`
	SaleDate          *time.Time             `json:"sale_date,omitempty"`
	DelistedAt        *time.Time             `json:"delisted_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time              `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt         gorm.DeletedAt         `json:"-" gorm:"index"`
}

func (Listing) TableName() string { return "listings" }

// Live reports whether the listing still occupies marketplace inventory.
func (l Listing) Live() bool {
	return l.Status == StatusActive || l.Status == StatusPending
}
