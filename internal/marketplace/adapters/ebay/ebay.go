package ebay

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

const defaultBaseURL = "https://api.ebay.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Marketplace() domain.Type {
	return domain.TypeEbay
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
			Marketplace: domain.TypeEbay,
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
	signature := strings.TrimSpace(headers.Get("X-Ebay-Signature"))
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
	ListingID string `json:"listingId"`
	Status    string `json:"listingStatus"`
	SoldPrice *price `json:"soldPrice"`
	SoldDate  string `json:"soldDate"`
	BuyerID   string `json:"buyerUsername"`
	OrderID   string `json:"orderId"`
}

type price struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

func (a *Adapter) GetListingByID(ctx context.Context, externalID string) (*domain.ListingSnapshot, error) {
	var resp listingResponse
	if err := a.client.GetJSON(ctx, "/sell/inventory/v1/listing/"+externalID, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.ListingSnapshot{
		ExternalID:            externalID,
		Status:                mapStatus(resp.Status),
		BuyerID:               resp.BuyerID,
		ExternalTransactionID: resp.OrderID,
	}
	if resp.SoldPrice != nil {
		value := resp.SoldPrice.Value
		snapshot.SalePrice = &value
		snapshot.SaleCurrency = strings.ToUpper(resp.SoldPrice.Currency)
	}
	if soldAt, err := time.Parse(time.RFC3339, resp.SoldDate); err == nil {
		utc := soldAt.UTC()
		snapshot.SaleDate = &utc
	}
	return snapshot, nil
}

func (a *Adapter) EndListing(ctx context.Context, externalID string, req domain.EndListingRequest) (*domain.EndListingResponse, error) {
	body := map[string]any{
		"reason":      endReason(req),
		"soldToBuyer": req.SoldToBuyer,
	}
	raw, err := a.client.PostJSON(ctx, "/sell/inventory/v1/listing/"+externalID+"/end", body, nil)
	if err != nil {
		return nil, err
	}
	return &domain.EndListingResponse{ExternalResponse: raw, EndedAt: time.Now().UTC()}, nil
}

func mapStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SOLD":
		return domain.SnapshotStatusSold
	case "ENDED", "COMPLETED":
		return domain.SnapshotStatusEnded
	default:
		return domain.SnapshotStatusActive
	}
}

func endReason(req domain.EndListingRequest) string {
	if req.SoldToBuyer {
		return "SOLD_ON_ANOTHER_PLATFORM"
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		return reason
	}
	return "NOT_AVAILABLE"
}
