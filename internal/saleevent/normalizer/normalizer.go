package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
)

// fieldMapping describes where one marketplace puts each canonical field in
// its webhook payload. Candidate keys are tried in order.
type fieldMapping struct {
	defaultEventType string
	eventID          []string
	listingID        []string
	transactionID    []string
	eventType        []string
	price            []string
	currency         []string
	saleDate         []string
	buyerID          []string
	paymentStatus    []string
}

var mappings = map[marketplacedomain.Type]fieldMapping{
	marketplacedomain.TypeEbay: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"eventId", "event_id"},
		listingID:        []string{"listingId", "listing_id"},
		transactionID:    []string{"orderId", "order_id"},
		eventType:        []string{"eventType"},
		price:            []string{"salePrice", "price"},
		currency:         []string{"currency"},
		saleDate:         []string{"saleDate", "sold_at"},
		buyerID:          []string{"buyerUsername", "buyer_id"},
		paymentStatus:    []string{"paymentStatus"},
	},
	marketplacedomain.TypePoshmark: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"event_id", "id"},
		listingID:        []string{"listing_id"},
		transactionID:    []string{"order_id"},
		eventType:        []string{"event_type"},
		price:            []string{"sold_price", "price"},
		currency:         []string{"currency"},
		saleDate:         []string{"sold_at"},
		buyerID:          []string{"buyer_id"},
		paymentStatus:    []string{"payment_status"},
	},
	marketplacedomain.TypeFacebookMarketplace: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"event_id", "id"},
		listingID:        []string{"listing_id"},
		transactionID:    []string{"transaction_id"},
		eventType:        []string{"event_type"},
		price:            []string{"price"},
		currency:         []string{"currency"},
		saleDate:         []string{"timestamp"},
		buyerID:          []string{"buyer_id"},
	},
	marketplacedomain.TypeMercari: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"event_id", "id"},
		listingID:        []string{"item_id", "listing_id"},
		transactionID:    []string{"order_id"},
		eventType:        []string{"event_type"},
		price:            []string{"sold_price"},
		currency:         []string{"currency"},
		saleDate:         []string{"sold_date"},
		buyerID:          []string{"buyer_id"},
		paymentStatus:    []string{"payment_status"},
	},
	marketplacedomain.TypeEtsy: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"event_id", "receipt_id"},
		listingID:        []string{"listing_id"},
		transactionID:    []string{"receipt_id"},
		eventType:        []string{"event_type"},
		price:            []string{"price"},
		currency:         []string{"currency_code", "currency"},
		saleDate:         []string{"last_modified_tsz"},
		buyerID:          []string{"buyer_user_id"},
	},
	marketplacedomain.TypeDepop: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"event_id", "id"},
		listingID:        []string{"product_id", "listing_id"},
		transactionID:    []string{"order_id"},
		eventType:        []string{"event_type"},
		price:            []string{"price"},
		currency:         []string{"currency"},
		saleDate:         []string{"sold_at"},
		buyerID:          []string{"buyer_id"},
	},
	marketplacedomain.TypeGrailed: {
		defaultEventType: domain.EventTypeItemSold,
		eventID:          []string{"event_id", "id"},
		listingID:        []string{"listing_id"},
		transactionID:    []string{"order_id"},
		eventType:        []string{"event_type"},
		price:            []string{"price", "sold_price"},
		currency:         []string{"currency"},
		saleDate:         []string{"sold_at"},
		buyerID:          []string{"buyer_id"},
	},
}

// Supported reports whether the marketplace has a webhook/poll field mapping.
func Supported(marketplace marketplacedomain.Type) bool {
	_, ok := mappings[marketplace]
	return ok
}

// Normalize converts a raw marketplace payload into a canonical draft.
// Recognized marketplaces without a mapping return ErrUnsupportedMarketplace,
// never a best-effort parse.
func Normalize(marketplace marketplacedomain.Type, payload []byte) (*domain.Draft, error) {
	mapping, ok := mappings[marketplace]
	if !ok {
		return nil, domain.ErrUnsupportedMarketplace
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	externalEventID := readString(fields, mapping.eventID)
	externalListingID := readString(fields, mapping.listingID)
	if externalEventID == "" || externalListingID == "" {
		return nil, domain.ErrInvalidPayload
	}

	salePrice, ok := readFloat(fields, mapping.price)
	if !ok {
		return nil, domain.ErrInvalidPayload
	}
	saleDate, ok := readTime(fields, mapping.saleDate)
	if !ok {
		return nil, domain.ErrInvalidPayload
	}

	eventType := readString(fields, mapping.eventType)
	if eventType == "" {
		eventType = mapping.defaultEventType
	}
	currency := strings.ToUpper(readString(fields, mapping.currency))
	if currency == "" {
		currency = "USD"
	}

	draft := &domain.Draft{
		Marketplace:           marketplace,
		EventType:             eventType,
		ExternalEventID:       externalEventID,
		ExternalListingID:     externalListingID,
		ExternalTransactionID: readString(fields, mapping.transactionID),
		SalePrice:             salePrice,
		SaleCurrency:          currency,
		SaleDate:              saleDate,
		BuyerID:               readString(fields, mapping.buyerID),
		PaymentStatus:         readString(fields, mapping.paymentStatus),
		RawData:               payload,
	}
	draft.EventHash = ComputeHash(marketplace, draft.ExternalEventID, draft.ExternalListingID, draft.SalePrice, draft.SaleDate)
	return draft, nil
}

// NormalizeSnapshot builds a draft from a polled listing snapshot. The
// synthetic event id is deterministic so repeated polls of the same sale
// collapse onto one event.
func NormalizeSnapshot(listing *listingdomain.Listing, snapshot *marketplacedomain.ListingSnapshot) (*domain.Draft, error) {
	if !Supported(listing.Marketplace) {
		return nil, domain.ErrUnsupportedMarketplace
	}
	if snapshot == nil || !snapshot.Sold() {
		return nil, domain.ErrInvalidPayload
	}

	salePrice := listing.Price
	if snapshot.SalePrice != nil {
		salePrice = *snapshot.SalePrice
	}
	saleDate := time.Now().UTC()
	if snapshot.SaleDate != nil {
		saleDate = snapshot.SaleDate.UTC()
	}
	currency := strings.ToUpper(snapshot.SaleCurrency)
	if currency == "" {
		currency = listing.Currency
	}

	externalEventID := snapshot.ExternalTransactionID
	if externalEventID == "" {
		externalEventID = "poll:" + snapshot.ExternalID + ":" + saleDate.Format(time.RFC3339)
	}

	raw := snapshot.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(map[string]any{
			"external_listing_id": snapshot.ExternalID,
			"status":              snapshot.Status,
		})
	}

	draft := &domain.Draft{
		Marketplace:           listing.Marketplace,
		EventType:             domain.EventTypeItemSold,
		ExternalEventID:       externalEventID,
		ExternalListingID:     snapshot.ExternalID,
		ExternalTransactionID: snapshot.ExternalTransactionID,
		SalePrice:             salePrice,
		SaleCurrency:          currency,
		SaleDate:              saleDate,
		BuyerID:               snapshot.BuyerID,
		RawData:               raw,
	}
	draft.EventHash = ComputeHash(listing.Marketplace, draft.ExternalEventID, draft.ExternalListingID, draft.SalePrice, draft.SaleDate)
	return draft, nil
}

// ComputeHash digests the five identity fields, pipe-joined in order. Both
// detection paths must produce byte-identical input for the same sale.
func ComputeHash(marketplace marketplacedomain.Type, externalEventID, externalListingID string, salePrice float64, saleDate time.Time) string {
	joined := strings.Join([]string{
		marketplace.String(),
		externalEventID,
		externalListingID,
		strconv.FormatFloat(salePrice, 'f', -1, 64),
		saleDate.UTC().Format(time.RFC3339),
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func readString(fields map[string]any, keys []string) string {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(cast); trimmed != "" {
				return trimmed
			}
		case float64:
			if cast != 0 {
				return strconv.FormatInt(int64(cast), 10)
			}
		case json.Number:
			return cast.String()
		}
	}
	return ""
}

func readFloat(fields map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case float64:
			return cast, true
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(cast), 64)
			if err == nil {
				return parsed, true
			}
		case json.Number:
			parsed, err := cast.Float64()
			if err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func readTime(fields map[string]any, keys []string) (time.Time, bool) {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case string:
			trimmed := strings.TrimSpace(cast)
			if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
				return parsed.UTC(), true
			}
			if epoch, err := strconv.ParseInt(trimmed, 10, 64); err == nil && epoch > 0 {
				return time.Unix(epoch, 0).UTC(), true
			}
		case float64:
			if cast > 0 {
				return time.Unix(int64(cast), 0).UTC(), true
			}
		case json.Number:
			epoch, err := cast.Int64()
			if err == nil && epoch > 0 {
				return time.Unix(epoch, 0).UTC(), true
			}
		}
	}
	return time.Time{}, false
}
