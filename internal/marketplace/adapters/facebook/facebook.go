package facebook

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

const defaultBaseURL = "https://graph.facebook.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Marketplace() domain.Type {
	return domain.TypeFacebookMarketplace
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
			Marketplace: domain.TypeFacebookMarketplace,
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

// Verify checks the Graph-style X-Hub-Signature-256 header, an HMAC of
// the payload prefixed with "sha256=".
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrInvalidConfig
	}
	signature := strings.TrimSpace(headers.Get("X-Hub-Signature-256"))
	signature = strings.TrimPrefix(signature, "sha256=")
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

type itemResponse struct {
	ID           string   `json:"id"`
	Availability string   `json:"availability"`
	SoldPrice    *float64 `json:"sold_price"`
	Currency     string   `json:"currency"`
	SoldDate     string   `json:"sold_date"`
	BuyerID      string   `json:"buyer_id"`
	OrderID      string   `json:"order_id"`
}

func (a *Adapter) GetListingByID(ctx context.Context, externalID string) (*domain.ListingSnapshot, error) {
	var resp itemResponse
	if err := a.client.GetJSON(ctx, "/v19.0/"+externalID, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.ListingSnapshot{
		ExternalID:            externalID,
		Status:                mapAvailability(resp.Availability),
		SalePrice:             resp.SoldPrice,
		SaleCurrency:          strings.ToUpper(resp.Currency),
		BuyerID:               resp.BuyerID,
		ExternalTransactionID: resp.OrderID,
	}
	if soldAt, err := time.Parse(time.RFC3339, resp.SoldDate); err == nil {
		utc := soldAt.UTC()
		snapshot.SaleDate = &utc
	}
	return snapshot, nil
}

func (a *Adapter) EndListing(ctx context.Context, externalID string, req domain.EndListingRequest) (*domain.EndListingResponse, error) {
	body := map[string]any{
		"availability": "out of stock",
	}
	raw, err := a.client.PostJSON(ctx, "/v19.0/"+externalID, body, nil)
	if err != nil {
		return nil, err
	}
	return &domain.EndListingResponse{ExternalResponse: raw, EndedAt: time.Now().UTC()}, nil
}

func mapAvailability(availability string) string {
	switch strings.ToLower(strings.TrimSpace(availability)) {
	case "sold", "out of stock", "out_of_stock":
		return domain.SnapshotStatusSold
	case "removed", "expired":
		return domain.SnapshotStatusEnded
	default:
		return domain.SnapshotStatusActive
	}
}
