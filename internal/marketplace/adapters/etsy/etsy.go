package etsy

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	"github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

const defaultBaseURL = "https://openapi.etsy.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Marketplace() domain.Type {
	return domain.TypeEtsy
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	token, ok := adapters.ReadString(cfg.Credentials, "access_token")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	apiKey, ok := adapters.ReadString(cfg.Credentials, "api_key")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := defaultBaseURL
	if override, ok := adapters.ReadString(cfg.Credentials, "api_base_url"); ok {
		baseURL = override
	}

	return &Adapter{
		client: &adapters.RESTClient{
			Marketplace: domain.TypeEtsy,
			BaseURL:     baseURL,
			HTTPClient:  cfg.HTTPClient,
			Authorize: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+token)
				req.Header.Set("x-api-key", apiKey)
			},
		},
	}, nil
}

type Adapter struct {
	client *adapters.RESTClient
}

// Etsy does not push sale notifications for this integration; polling only.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return domain.ErrWebhookNotSupported
}

type listingResponse struct {
	ListingID       int64  `json:"listing_id"`
	State           string `json:"state"`
	Price           *money `json:"price"`
	LastModifiedTsz int64  `json:"last_modified_tsz"`
	OrderID         string `json:"receipt_id"`
}

type money struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

func (a *Adapter) GetListingByID(ctx context.Context, externalID string) (*domain.ListingSnapshot, error) {
	var resp listingResponse
	if err := a.client.GetJSON(ctx, "/v3/application/listings/"+externalID, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.ListingSnapshot{
		ExternalID:            externalID,
		Status:                mapState(resp.State),
		ExternalTransactionID: resp.OrderID,
	}
	if resp.Price != nil && resp.Price.Divisor > 0 {
		value := float64(resp.Price.Amount) / float64(resp.Price.Divisor)
		snapshot.SalePrice = &value
		snapshot.SaleCurrency = strings.ToUpper(resp.Price.CurrencyCode)
	}
	if resp.LastModifiedTsz > 0 {
		modified := time.Unix(resp.LastModifiedTsz, 0).UTC()
		snapshot.SaleDate = &modified
	}
	return snapshot, nil
}

func (a *Adapter) EndListing(ctx context.Context, externalID string, req domain.EndListingRequest) (*domain.EndListingResponse, error) {
	body := map[string]any{
		"state": "inactive",
	}
	raw, err := a.client.PostJSON(ctx, "/v3/application/listings/"+externalID+"/deactivate", body, nil)
	if err != nil {
		return nil, err
	}
	return &domain.EndListingResponse{ExternalResponse: raw, EndedAt: time.Now().UTC()}, nil
}

func mapState(state string) string {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "sold_out":
		return domain.SnapshotStatusSold
	case "inactive", "expired", "removed":
		return domain.SnapshotStatusEnded
	default:
		return domain.SnapshotStatusActive
	}
}
