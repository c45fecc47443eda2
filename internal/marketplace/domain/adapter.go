package domain

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	SnapshotStatusActive = "active"
	SnapshotStatusSold   = "sold"
	SnapshotStatusEnded  = "ended"
)

// ListingSnapshot is the adapter-reported state of one external listing.
type ListingSnapshot struct {
	ExternalID            string
	Status                string
	SalePrice             *float64
	SaleCurrency          string
	SaleDate              *time.Time
	BuyerID               string
	ExternalTransactionID string
	Raw                   json.RawMessage
}

func (s *ListingSnapshot) Sold() bool {
	return s != nil && s.Status == SnapshotStatusSold
}

// EndListingRequest carries the delist intent to the marketplace.
type EndListingRequest struct {
	Reason      string
	SoldToBuyer bool
}

// EndListingResponse is the marketplace acknowledgement of a delist call.
type EndListingResponse struct {
	ExternalResponse json.RawMessage
	EndedAt          time.Time
}

// Adapter is the per-connection marketplace client. Marketplaces without
// webhook support return ErrWebhookNotSupported from Verify.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	GetListingByID(ctx context.Context, externalID string) (*ListingSnapshot, error)
	EndListing(ctx context.Context, externalID string, req EndListingRequest) (*EndListingResponse, error)
}

// AdapterConfig is the decoded connection state handed to a factory.
type AdapterConfig struct {
	UserID        snowflake.ID
	Marketplace   Type
	Credentials   map[string]any
	WebhookSecret string
	HTTPClient    *http.Client
}

// Factory builds adapters for one marketplace.
type Factory interface {
	Marketplace() Type
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
