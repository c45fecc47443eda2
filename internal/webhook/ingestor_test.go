package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	auditrepo "github.com/smallbiznis/crosslist/internal/audit/repository"
	auditservice "github.com/smallbiznis/crosslist/internal/audit/service"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	delistingrepo "github.com/smallbiznis/crosslist/internal/delisting/repository"
	delistingscheduler "github.com/smallbiznis/crosslist/internal/delisting/scheduler"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	listingrepo "github.com/smallbiznis/crosslist/internal/listing/repository"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/ebay"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/mercari"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	marketplacerepo "github.com/smallbiznis/crosslist/internal/marketplace/repository"
	saleeventdomain "github.com/smallbiznis/crosslist/internal/saleevent/domain"
	saleeventrepo "github.com/smallbiznis/crosslist/internal/saleevent/repository"
	saleeventservice "github.com/smallbiznis/crosslist/internal/saleevent/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type ingestorFixture struct {
	db       *gorm.DB
	clk      *clock.FakeClock
	node     *snowflake.Node
	ingestor *Ingestor
}

func newIngestorFixture(t *testing.T) *ingestorFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&listingdomain.Listing{},
		&marketplacedomain.Connection{},
		&saleeventdomain.SaleEvent{},
		&delistingdomain.DelistingJob{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	listings := listingrepo.Provide(db, clk)
	connections := marketplacerepo.Provide(db)
	jobs := delistingrepo.Provide(db, clk)
	events := saleeventservice.NewService(saleeventservice.Params{
		Log:   log,
		Clock: clk,
		GenID: node,
		Repo:  saleeventrepo.Provide(db, clk),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		Clock: clk,
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	scheduler := delistingscheduler.NewScheduler(delistingscheduler.Params{
		Cfg:         config.Config{DelistMaxRetries: 3},
		Log:         log,
		Clock:       clk,
		GenID:       node,
		Jobs:        jobs,
		Listings:    listings,
		Connections: connections,
		Events:      events,
		Audit:       audit,
	})

	ingestor := NewIngestor(Params{
		Cfg:         config.Config{WebhookVerifyToken: "verify_me"},
		Log:         log,
		Connections: connections,
		Listings:    listings,
		Registry:    adapters.NewRegistry(ebay.NewFactory(), mercari.NewFactory()),
		Events:      events,
		Scheduler:   scheduler,
	})

	return &ingestorFixture{db: db, clk: clk, node: node, ingestor: ingestor}
}

func (f *ingestorFixture) seedUser(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()
	userID := f.node.Generate()
	itemID := f.node.Generate()

	conn := marketplacedomain.Connection{
		ID:               f.node.Generate(),
		UserID:           userID,
		Marketplace:      marketplacedomain.TypeEbay,
		Credentials:      []byte(`{"access_token":"tok_ebay"}`),
		WebhookSecret:    testWebhookSecret,
		DelistPreference: marketplacedomain.DelistPreferenceAuto,
		IsActive:         true,
	}
	if err := f.db.Create(&conn).Error; err != nil {
		t.Fatalf("create connection: %v", err)
	}

	for _, seed := range []struct {
		marketplace marketplacedomain.Type
		externalID  string
	}{
		{marketplacedomain.TypeEbay, "eb_100"},
		{marketplacedomain.TypePoshmark, "pm_100"},
	} {
		listing := listingdomain.Listing{
			ID:                f.node.Generate(),
			UserID:            userID,
			InventoryItemID:   itemID,
			Marketplace:       seed.marketplace,
			ExternalListingID: seed.externalID,
			Price:             45,
			Currency:          "USD",
			Status:            listingdomain.StatusActive,
		}
		if err := f.db.Create(&listing).Error; err != nil {
			t.Fatalf("create listing: %v", err)
		}
	}
	return userID, itemID
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func ebayPayload() []byte {
	return []byte(`{
		"eventId": "evt_500",
		"listingId": "eb_100",
		"orderId": "ord_500",
		"salePrice": 45.0,
		"currency": "USD",
		"saleDate": "2026-08-20T11:00:00Z",
		"buyerUsername": "buyer_a"
	}`)
}

func TestIngestWebhookSchedulesDelisting(t *testing.T) {
	f := newIngestorFixture(t)
	ctx := context.Background()
	f.seedUser(t)

	payload := ebayPayload()
	headers := http.Header{}
	headers.Set("X-Ebay-Signature", sign(payload))

	result, err := f.ingestor.IngestWebhook(ctx, marketplacedomain.TypeEbay, payload, headers)
	assert.NoError(t, err)
	assert.True(t, result.Created)
	assert.NotNil(t, result.JobID)

	var listing listingdomain.Listing
	assert.NoError(t, f.db.First(&listing, "external_listing_id = ?", "eb_100").Error)
	assert.Equal(t, listingdomain.StatusSold, listing.Status)

	var job delistingdomain.DelistingJob
	assert.NoError(t, f.db.First(&job, "id = ?", *result.JobID).Error)
	assert.ElementsMatch(t, []string{"poshmark"}, []string(job.MarketplacesTargeted))
}

func TestIngestWebhookDuplicate(t *testing.T) {
	f := newIngestorFixture(t)
	ctx := context.Background()
	f.seedUser(t)

	payload := ebayPayload()
	headers := http.Header{}
	headers.Set("X-Ebay-Signature", sign(payload))

	first, err := f.ingestor.IngestWebhook(ctx, marketplacedomain.TypeEbay, payload, headers)
	assert.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.ingestor.IngestWebhook(ctx, marketplacedomain.TypeEbay, payload, headers)
	assert.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.EventID, second.EventID)

	var count int64
	assert.NoError(t, f.db.Model(&delistingdomain.DelistingJob{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	f := newIngestorFixture(t)
	ctx := context.Background()
	f.seedUser(t)

	payload := ebayPayload()
	headers := http.Header{}
	headers.Set("X-Ebay-Signature", "deadbeef")

	_, err := f.ingestor.IngestWebhook(ctx, marketplacedomain.TypeEbay, payload, headers)
	assert.ErrorIs(t, err, marketplacedomain.ErrInvalidSignature)

	var count int64
	assert.NoError(t, f.db.Model(&saleeventdomain.SaleEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestIngestWebhookUnknownListing(t *testing.T) {
	f := newIngestorFixture(t)
	ctx := context.Background()
	f.seedUser(t)

	payload := []byte(`{
		"eventId": "evt_501",
		"listingId": "eb_missing",
		"salePrice": 10,
		"saleDate": "2026-08-20T11:00:00Z"
	}`)
	headers := http.Header{}
	headers.Set("X-Ebay-Signature", sign(payload))

	_, err := f.ingestor.IngestWebhook(ctx, marketplacedomain.TypeEbay, payload, headers)
	assert.ErrorIs(t, err, listingdomain.ErrListingNotFound)
}

func TestIngestWebhookUnsupportedMarketplace(t *testing.T) {
	f := newIngestorFixture(t)

	_, err := f.ingestor.IngestWebhook(context.Background(), marketplacedomain.TypeAmazon, []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, saleeventdomain.ErrUnsupportedMarketplace)
}

func TestVerifyHandshake(t *testing.T) {
	f := newIngestorFixture(t)

	query := url.Values{}
	query.Set("hub.mode", "subscribe")
	query.Set("hub.verify_token", "verify_me")
	query.Set("hub.challenge", "challenge_1")

	challenge, err := f.ingestor.VerifyHandshake(marketplacedomain.TypeFacebookMarketplace, query)
	assert.NoError(t, err)
	assert.Equal(t, "challenge_1", challenge)

	query.Set("hub.verify_token", "wrong")
	_, err = f.ingestor.VerifyHandshake(marketplacedomain.TypeFacebookMarketplace, query)
	assert.ErrorIs(t, err, ErrInvalidHandshake)

	_, err = f.ingestor.VerifyHandshake(marketplacedomain.TypeEbay, query)
	assert.ErrorIs(t, err, marketplacedomain.ErrWebhookNotSupported)
}
