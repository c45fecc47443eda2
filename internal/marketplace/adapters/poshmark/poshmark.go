package poshmark

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	"github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

const defaultBaseURL = "https://api.poshmark.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Marketplace() domain.Type {
	return domain.TypePoshmark
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
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		client: &adapters.RESTClient{
			Marketplace: domain.TypePoshmark,
			BaseURL:     baseURL,
			HTTPClient:  cfg.HTTPClient,
			Authorize: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+token)
			},
		},
	}, nil
}

type Adapter struct {
	webhookSecret string
	client        *adapters.RESTClient
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrInvalidConfig
	}
	signature := strings.TrimSpace(headers.Get("X-Poshmark-Signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type listingResponse struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	SoldPrice *float64 `json:"sold_price"`
	Currency  string   `json:"currency"`
	SoldAt    string   `json:"sold_at"`
	BuyerID   string   `json:"buyer_id"`
	OrderID   string   `json:"order_id"`
}

func (a *Adapter) GetListingByID(ctx context.Context, externalID string) (*domain.ListingSnapshot, error) {
	var resp listingResponse
	if err := a.client.GetJSON(ctx, "/api/listings/"+externalID, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.ListingSnapshot{
		ExternalID:            externalID,
		Status:                mapStatus(resp.Status),
		SalePrice:             resp.SoldPrice,
		SaleCurrency:          strings.ToUpper(resp.Currency),
		BuyerID:               resp.BuyerID,
		ExternalTransactionID: resp.OrderID,
	}
	if soldAt, err := time.Parse(time.RFC3339, resp.SoldAt); err == nil {
		utc := soldAt.UTC()
		snapshot.SaleDate = &utc
	}
	return snapshot, nil
}

func (a *Adapter) EndListing(ctx context.Context, externalID string, req domain.EndListingRequest) (*domain.EndListingResponse, error) {
	body := map[string]any{
		"reason":        strings.TrimSpace(req.Reason),
		"sold_to_buyer": req.SoldToBuyer,
	}
	raw, err := a.client.PostJSON(ctx, "/api/listings/"+externalID+"/unlist", body, nil)
	if err != nil {
		return nil, err
	}
	return &domain.EndListingResponse{ExternalResponse: raw, EndedAt: time.Now().UTC()}, nil
}

func mapStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "sold", "sold_out":
		return domain.SnapshotStatusSold
	case "not_for_sale", "dropped":
		return domain.SnapshotStatusEnded
	default:
		return domain.SnapshotStatusActive
	}
}
