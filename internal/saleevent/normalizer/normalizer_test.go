package normalizer

import (
	"errors"
	"testing"
	"time"

	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
)

func TestNormalizeMercari(t *testing.T) {
	payload := []byte(`{
		"event_id": "evt_m1",
		"item_id": "itm_9",
		"order_id": "ord_3",
		"sold_price": 32.5,
		"currency": "usd",
		"sold_date": "2026-08-20T10:30:00Z",
		"buyer_id": "buyer_1"
	}`)

	draft, err := Normalize(marketplacedomain.TypeMercari, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if draft.ExternalEventID != "evt_m1" || draft.ExternalListingID != "itm_9" {
		t.Fatalf("unexpected ids %q %q", draft.ExternalEventID, draft.ExternalListingID)
	}
	if draft.SalePrice != 32.5 {
		t.Fatalf("unexpected price %v", draft.SalePrice)
	}
	if draft.SaleCurrency != "USD" {
		t.Fatalf("unexpected currency %q", draft.SaleCurrency)
	}
	if draft.EventType != domain.EventTypeItemSold {
		t.Fatalf("unexpected event type %q", draft.EventType)
	}
	if draft.EventHash == "" {
		t.Fatalf("expected hash")
	}
}

func TestNormalizeEtsyEpochDate(t *testing.T) {
	payload := []byte(`{
		"event_id": "evt_e1",
		"listing_id": "lst_4",
		"price": 18,
		"currency_code": "eur",
		"last_modified_tsz": 1755686400
	}`)

	draft, err := Normalize(marketplacedomain.TypeEtsy, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := time.Unix(1755686400, 0).UTC()
	if !draft.SaleDate.Equal(want) {
		t.Fatalf("unexpected sale date %v, want %v", draft.SaleDate, want)
	}
	if draft.SaleCurrency != "EUR" {
		t.Fatalf("unexpected currency %q", draft.SaleCurrency)
	}
}

func TestNormalizeUnsupportedMarketplace(t *testing.T) {
	for _, marketplace := range []marketplacedomain.Type{
		marketplacedomain.TypeCustom,
		marketplacedomain.TypeAmazon,
		marketplacedomain.TypeShopify,
		marketplacedomain.TypeTradesy,
		marketplacedomain.TypeTheRealReal,
		marketplacedomain.TypeVestiaireCollective,
	} {
		_, err := Normalize(marketplace, []byte(`{"event_id":"e","listing_id":"l"}`))
		if !errors.Is(err, domain.ErrUnsupportedMarketplace) {
			t.Fatalf("%s: expected unsupported marketplace, got %v", marketplace, err)
		}
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	_, err := Normalize(marketplacedomain.TypeMercari, []byte(`{"sold_price": 10}`))
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	saleDate := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)

	first := ComputeHash(marketplacedomain.TypeEbay, "evt_1", "lst_1", 42.5, saleDate)
	second := ComputeHash(marketplacedomain.TypeEbay, "evt_1", "lst_1", 42.5, saleDate)
	if first != second {
		t.Fatalf("hash not deterministic: %s vs %s", first, second)
	}

	other := ComputeHash(marketplacedomain.TypeEbay, "evt_2", "lst_1", 42.5, saleDate)
	if first == other {
		t.Fatalf("expected distinct hashes for distinct event ids")
	}
}

func TestHashAgreesAcrossWebhookAndPollPaths(t *testing.T) {
	saleDate := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	payload := []byte(`{
		"event_id": "ord_55",
		"item_id": "itm_1",
		"order_id": "ord_55",
		"sold_price": 25,
		"sold_date": "2026-08-20T10:30:00Z"
	}`)
	fromWebhook, err := Normalize(marketplacedomain.TypeMercari, payload)
	if err != nil {
		t.Fatalf("normalize webhook: %v", err)
	}

	price := 25.0
	listing := &listingdomain.Listing{
		Marketplace: marketplacedomain.TypeMercari,
		Currency:    "USD",
		Price:       price,
	}
	fromPoll, err := NormalizeSnapshot(listing, &marketplacedomain.ListingSnapshot{
		ExternalID:            "itm_1",
		Status:                marketplacedomain.SnapshotStatusSold,
		SalePrice:             &price,
		SaleDate:              &saleDate,
		ExternalTransactionID: "ord_55",
	})
	if err != nil {
		t.Fatalf("normalize snapshot: %v", err)
	}

	if fromWebhook.EventHash != fromPoll.EventHash {
		t.Fatalf("hash mismatch: webhook %s poll %s", fromWebhook.EventHash, fromPoll.EventHash)
	}
}
