package depop

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	"github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

const defaultBaseURL = "https://api.depop.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Marketplace() domain.Type {
	return domain.TypeDepop
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	token, ok := adapters.ReadString(cfg.Credentials, "access_token")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := defaultBaseURL
	if override, ok := adapters.ReadString(cfg.Credentials, "api_base_url"); ok {
		baseURL = override
	}

	return &Adapter{
		client: &adapters.RESTClient{
			Marketplace: domain.TypeDepop,
			BaseURL:     baseURL,
			HTTPClient:  cfg.HTTPClient,
			Authorize: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+token)
			},
		},
	}, nil
}

type Adapter struct {
	client *adapters.RESTClient
}

// Depop exposes no webhooks; polling only.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return domain.ErrWebhookNotSupported
}

type productResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
	SoldAt   string   `json:"sold_at"`
	BuyerID  string   `json:"buyer_id"`
}

func (a *Adapter) GetListingByID(ctx context.Context, externalID string) (*domain.ListingSnapshot, error) {
	var resp productResponse
	if err := a.client.GetJSON(ctx, "/api/v1/products/"+externalID, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.ListingSnapshot{
		ExternalID:   externalID,
		Status:       mapStatus(resp.Status),
		SalePrice:    resp.Price,
		SaleCurrency: strings.ToUpper(resp.Currency),
		BuyerID:      resp.BuyerID,
	}
	if soldAt, err := time.Parse(time.RFC3339, resp.SoldAt); err == nil {
		utc := soldAt.UTC()
		snapshot.SaleDate = &utc
	}
	return snapshot, nil
}

func (a *Adapter) EndListing(ctx context.Context, externalID string, req domain.EndListingRequest) (*domain.EndListingResponse, error) {
	body := map[string]any{
		"reason": strings.TrimSpace(req.Reason),
	}
	raw, err := a.client.PostJSON(ctx, "/api/v1/products/"+externalID+"/end", body, nil)
	if err != nil {
		return nil, err
	}
	return &domain.EndListingResponse{ExternalResponse: raw, EndedAt: time.Now().UTC()}, nil
}

func mapStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "sold":
		return domain.SnapshotStatusSold
	case "deleted", "ended":
		return domain.SnapshotStatusEnded
	default:
		return domain.SnapshotStatusActive
	}
}
