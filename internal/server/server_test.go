package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	auditrepo "github.com/smallbiznis/crosslist/internal/audit/repository"
	auditservice "github.com/smallbiznis/crosslist/internal/audit/service"
	"github.com/smallbiznis/crosslist/internal/circuitbreaker"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	delistingengine "github.com/smallbiznis/crosslist/internal/delisting/engine"
	delistingrepo "github.com/smallbiznis/crosslist/internal/delisting/repository"
	delistingscheduler "github.com/smallbiznis/crosslist/internal/delisting/scheduler"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	listingrepo "github.com/smallbiznis/crosslist/internal/listing/repository"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/ebay"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/poshmark"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	marketplacerepo "github.com/smallbiznis/crosslist/internal/marketplace/repository"
	"github.com/smallbiznis/crosslist/internal/observability"
	saleeventdomain "github.com/smallbiznis/crosslist/internal/saleevent/domain"
	saleeventrepo "github.com/smallbiznis/crosslist/internal/saleevent/repository"
	saleeventservice "github.com/smallbiznis/crosslist/internal/saleevent/service"
	"github.com/smallbiznis/crosslist/internal/webhook"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testAPIKey        = "internal_test_key"
	testWebhookSecret = "whsec_server_test"
)

type serverFixture struct {
	db     *gorm.DB
	clk    *clock.FakeClock
	node   *snowflake.Node
	engine *gin.Engine
	jobs   delistingdomain.Repository
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Config{
		InternalAPIKey:     testAPIKey,
		WebhookVerifyToken: "verify_me",
		DelistMaxRetries:   3,
	}

	registry := adapters.NewRegistry(ebay.NewFactory(), poshmark.NewFactory())
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
		Cfg:         cfg,
		Log:         log,
		Clock:       clk,
		GenID:       node,
		Jobs:        jobs,
		Listings:    listings,
		Connections: connections,
		Events:      events,
		Audit:       audit,
	})
	delister := delistingengine.NewEngine(delistingengine.Params{
		Log:         log,
		Clock:       clk,
		Jobs:        jobs,
		Listings:    listings,
		Connections: connections,
		Registry:    registry,
		Breaker:     circuitbreaker.NewMemoryBreaker(circuitbreaker.DefaultConfig(), clk, log),
		Audit:       audit,
	})
	ingestor := webhook.NewIngestor(webhook.Params{
		Cfg:         cfg,
		Log:         log,
		Connections: connections,
		Listings:    listings,
		Registry:    registry,
		Events:      events,
		Scheduler:   scheduler,
	})

	engine := NewEngine(observability.Config{LogLevel: "info"})
	NewServer(ServerParams{
		Gin:      engine,
		Cfg:      cfg,
		Log:      log,
		Clock:    clk,
		Ingestor: ingestor,
		Delister: delister,
		Jobs:     jobs,
		AuditSvc: audit,
	})

	return &serverFixture{db: db, clk: clk, node: node, engine: engine, jobs: jobs}
}

func (f *serverFixture) seedUser(t *testing.T, delistBase string) (snowflake.ID, snowflake.ID) {
	t.Helper()
	userID := f.node.Generate()
	itemID := f.node.Generate()

	for _, marketplace := range []marketplacedomain.Type{marketplacedomain.TypeEbay, marketplacedomain.TypePoshmark} {
		creds := `{"access_token":"tok_` + string(marketplace) + `"`
		if delistBase != "" {
			creds += `,"api_base_url":"` + delistBase + `"`
		}
		creds += `}`
		conn := marketplacedomain.Connection{
			ID:               f.node.Generate(),
			UserID:           userID,
			Marketplace:      marketplace,
			Credentials:      []byte(creds),
			WebhookSecret:    testWebhookSecret,
			DelistPreference: marketplacedomain.DelistPreferenceAuto,
			IsActive:         true,
		}
		if err := f.db.Create(&conn).Error; err != nil {
			t.Fatalf("create connection: %v", err)
		}
	}

	for _, seed := range []struct {
		marketplace marketplacedomain.Type
		externalID  string
	}{
		{marketplacedomain.TypeEbay, "eb_900"},
		{marketplacedomain.TypePoshmark, "pm_900"},
	} {
		listing := listingdomain.Listing{
			ID:                f.node.Generate(),
			UserID:            userID,
			InventoryItemID:   itemID,
			Marketplace:       seed.marketplace,
			ExternalListingID: seed.externalID,
			Price:             80,
			Currency:          "USD",
			Status:            listingdomain.StatusActive,
		}
		if err := f.db.Create(&listing).Error; err != nil {
			t.Fatalf("create listing: %v", err)
		}
	}
	return userID, itemID
}

func (f *serverFixture) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func authHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + testAPIKey}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func TestHandleWebhookAcceptsSale(t *testing.T) {
	f := newServerFixture(t)
	f.seedUser(t, "")

	payload := []byte(`{
		"eventId": "evt_900",
		"listingId": "eb_900",
		"salePrice": 80.0,
		"currency": "USD",
		"saleDate": "2026-08-20T11:30:00Z"
	}`)

	rec := f.do(http.MethodPost, "/webhooks/ebay", payload, map[string]string{
		"X-Ebay-Signature": signPayload(payload),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data webhook.IngestResult `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Created)
	assert.NotNil(t, resp.Data.JobID)

	var listing listingdomain.Listing
	assert.NoError(t, f.db.First(&listing, "external_listing_id = ?", "eb_900").Error)
	assert.Equal(t, listingdomain.StatusSold, listing.Status)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newServerFixture(t)
	f.seedUser(t, "")

	payload := []byte(`{"eventId":"evt_901","listingId":"eb_900","salePrice":80,"saleDate":"2026-08-20T11:30:00Z"}`)
	rec := f.do(http.MethodPost, "/webhooks/ebay", payload, map[string]string{
		"X-Ebay-Signature": "deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestHandleWebhookUnsupportedMarketplace(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/webhooks/amazon", []byte(`{}`), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleWebhookHandshake(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/webhooks/facebook_marketplace?hub.mode=subscribe&hub.verify_token=verify_me&hub.challenge=ch_1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ch_1", rec.Body.String())

	rec = f.do(http.MethodGet, "/webhooks/facebook_marketplace?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=ch_1", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInternalRoutesRequireAPIKey(t *testing.T) {
	f := newServerFixture(t)
	jobID := f.node.Generate()

	rec := f.do(http.MethodGet, "/internal/delisting/jobs/"+jobID.String(), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/internal/delisting/jobs/"+jobID.String(), nil, map[string]string{
		"Authorization": "Bearer wrong_key",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetDelistingJobNotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/internal/delisting/jobs/"+f.node.Generate().String(), nil, authHeaders(nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmThenExecuteJob(t *testing.T) {
	f := newServerFixture(t)

	marketplaceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ended"}`))
	}))
	defer marketplaceSrv.Close()

	userID, itemID := f.seedUser(t, marketplaceSrv.URL)

	job := delistingdomain.DelistingJob{
		ID:                       f.node.Generate(),
		UserID:                   userID,
		InventoryItemID:          itemID,
		SourceMarketplace:        marketplacedomain.TypeEbay,
		Status:                   delistingdomain.JobStatusPending,
		MarketplacesTargeted:     []string{"poshmark"},
		RequiresUserConfirmation: true,
		ScheduledFor:             f.clk.Now(),
		MaxRetries:               3,
	}
	if err := f.db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	// Executing before confirmation is a conflict.
	rec := f.do(http.MethodPost, "/internal/delisting/jobs/"+job.ID.String()+"/execute", nil, authHeaders(nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Confirming as a different user is forbidden.
	otherUser := f.node.Generate()
	body, _ := json.Marshal(map[string]string{"user_id": otherUser.String()})
	rec = f.do(http.MethodPost, "/internal/delisting/jobs/"+job.ID.String()+"/confirm", body, authHeaders(map[string]string{
		"Content-Type": "application/json",
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, _ = json.Marshal(map[string]string{"user_id": userID.String()})
	rec = f.do(http.MethodPost, "/internal/delisting/jobs/"+job.ID.String()+"/confirm", body, authHeaders(map[string]string{
		"Content-Type": "application/json",
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/internal/delisting/jobs/"+job.ID.String()+"/execute", nil, authHeaders(nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.jobs.FindByID(context.Background(), job.ID)
	assert.NoError(t, err)
	assert.Equal(t, delistingdomain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.TotalDelisted)
}

func TestListAuditLogs(t *testing.T) {
	f := newServerFixture(t)
	f.seedUser(t, "")

	payload := []byte(`{
		"eventId": "evt_903",
		"listingId": "eb_900",
		"salePrice": 80.0,
		"saleDate": "2026-08-20T11:30:00Z"
	}`)
	rec := f.do(http.MethodPost, "/webhooks/ebay", payload, map[string]string{
		"X-Ebay-Signature": signPayload(payload),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/internal/audit-logs?action="+auditdomain.ActionJobScheduled, nil, authHeaders(nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []auditdomain.AuditLog `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
}
