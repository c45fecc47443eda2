package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"gorm.io/datatypes"
)

const (
	EventTypeItemSold = "item_sold"

	SourceWebhook = "webhook"
	SourcePoll    = "poll"
)

// SaleEvent is a normalized sale signal, deduplicated by EventHash.
type SaleEvent struct {
	ID                    snowflake.ID           `json:"id" gorm:"primaryKey"`
	UserID                snowflake.ID           `json:"user_id" gorm:"not null;index"`
	InventoryItemID       *snowflake.ID          `json:"inventory_item_id,omitempty" gorm:"index"`
	ListingID             *snowflake.ID          `json:"listing_id,omitempty" gorm:"index"`
	Marketplace           marketplacedomain.Type `json:"marketplace" gorm:"type:text;not null;index"`
	EventType             string                 `json:"event_type" gorm:"type:text;not null"`
	Source                string                 `json:"source" gorm:"type:text;not null"`
	ExternalEventID       string                 `json:"external_event_id" gorm:"type:text;not null"`
	ExternalListingID     string                 `json:"external_listing_id" gorm:"type:text;not null"`
	ExternalTransactionID string                 `json:"external_transaction_id" gorm:"type:text"`
	SalePrice             float64                `json:"sale_price" gorm:"type:numeric(12,2);not null"`
	SaleCurrency          string                 `json:"sale_currency" gorm:"type:text;not null;default:USD"`
	SaleDate              time.Time              `json:"sale_date" gorm:"not null"`
	BuyerID               string                 `json:"buyer_id" gorm:"type:text"`
	PaymentStatus         string                 `json:"payment_status" gorm:"type:text"`
	RawData               datatypes.JSON         `json:"raw_data" gorm:"type:jsonb"`
	EventHash             string                 `json:"event_hash" gorm:"type:text;not null;uniqueIndex:ux_sale_events_event_hash"`
	Verified              bool                   `json:"verified" gorm:"not null;default:false"`
	Processed             bool                   `json:"processed" gorm:"not null;default:false;index"`
	CreatedAt             time.Time              `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time              `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SaleEvent) TableName() string { return "sale_events" }

// Draft is a normalized event before persistence. The normalizer fills
// marketplace-facing fields and the hash; callers attach user and listing
// linkage before recording.
type Draft struct {
	Marketplace           marketplacedomain.Type
	EventType             string
	ExternalEventID       string
	ExternalListingID     string
	ExternalTransactionID string
	SalePrice             float64
	SaleCurrency          string
	SaleDate              time.Time
	BuyerID               string
	PaymentStatus         string
	RawData               []byte
	EventHash             string
}

// RecordResult reports the outcome of recording a draft. Exactly one of
// Created/Duplicate describes the row: the first writer wins, later
// writers observe the existing event's id.
type RecordResult struct {
	Created     bool
	Event       *SaleEvent
	DuplicateOf snowflake.ID
}
