package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	auditrepo "github.com/smallbiznis/crosslist/internal/audit/repository"
	auditservice "github.com/smallbiznis/crosslist/internal/audit/service"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	"github.com/smallbiznis/crosslist/internal/delisting/domain"
	delistingrepo "github.com/smallbiznis/crosslist/internal/delisting/repository"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	listingrepo "github.com/smallbiznis/crosslist/internal/listing/repository"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	marketplacerepo "github.com/smallbiznis/crosslist/internal/marketplace/repository"
	saleeventdomain "github.com/smallbiznis/crosslist/internal/saleevent/domain"
	saleeventrepo "github.com/smallbiznis/crosslist/internal/saleevent/repository"
	saleeventservice "github.com/smallbiznis/crosslist/internal/saleevent/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type schedulerFixture struct {
	db        *gorm.DB
	clk       *clock.FakeClock
	node      *snowflake.Node
	jobs      domain.Repository
	events    saleeventdomain.Repository
	scheduler domain.Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.DelistingJob{},
		&listingdomain.Listing{},
		&marketplacedomain.Connection{},
		&saleeventdomain.SaleEvent{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	jobs := delistingrepo.Provide(db, clk)
	eventsRepo := saleeventrepo.Provide(db, clk)
	eventsService := saleeventservice.NewService(saleeventservice.Params{
		Log:   log,
		Clock: clk,
		GenID: node,
		Repo:  eventsRepo,
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		Clock: clk,
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	sched := NewScheduler(Params{
		Cfg:         config.Config{DelistMaxRetries: 3, DelistConfirmDefault: false},
		Log:         log,
		Clock:       clk,
		GenID:       node,
		Jobs:        jobs,
		Listings:    listingrepo.Provide(db, clk),
		Connections: marketplacerepo.Provide(db),
		Events:      eventsService,
		Audit:       audit,
	})

	return &schedulerFixture{db: db, clk: clk, node: node, jobs: jobs, events: eventsRepo, scheduler: sched}
}

func (f *schedulerFixture) addListing(t *testing.T, userID, itemID snowflake.ID, marketplace marketplacedomain.Type) {
	t.Helper()
	listing := listingdomain.Listing{
		ID:                f.node.Generate(),
		UserID:            userID,
		InventoryItemID:   itemID,
		Marketplace:       marketplace,
		ExternalListingID: "ext_" + f.node.Generate().String(),
		Price:             25,
		Currency:          "USD",
		Status:            listingdomain.StatusActive,
	}
	if err := f.db.Create(&listing).Error; err != nil {
		t.Fatalf("create listing: %v", err)
	}
}

func (f *schedulerFixture) addEvent(t *testing.T, userID, itemID snowflake.ID, marketplace marketplacedomain.Type) *saleeventdomain.SaleEvent {
	t.Helper()
	event := &saleeventdomain.SaleEvent{
		ID:                f.node.Generate(),
		UserID:            userID,
		InventoryItemID:   &itemID,
		Marketplace:       marketplace,
		EventType:         saleeventdomain.EventTypeItemSold,
		Source:            saleeventdomain.SourceWebhook,
		ExternalEventID:   "evt_" + f.node.Generate().String(),
		ExternalListingID: "ext_src",
		SalePrice:         25,
		SaleCurrency:      "USD",
		SaleDate:          f.clk.Now(),
		EventHash:         "hash_" + f.node.Generate().String(),
		Verified:          true,
	}
	if err := f.events.Insert(context.Background(), event); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return event
}

func TestCreateJobFromEvent(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	userID := f.node.Generate()
	itemID := f.node.Generate()
	f.addListing(t, userID, itemID, marketplacedomain.TypeMercari)
	f.addListing(t, userID, itemID, marketplacedomain.TypeEbay)
	f.addListing(t, userID, itemID, marketplacedomain.TypePoshmark)
	event := f.addEvent(t, userID, itemID, marketplacedomain.TypeMercari)

	job, err := f.scheduler.CreateJobFromEvent(ctx, event)
	assert.NoError(t, err)
	assert.NotNil(t, job)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.ElementsMatch(t, []string{"ebay", "poshmark"}, []string(job.MarketplacesTargeted))
	assert.False(t, job.RequiresUserConfirmation)
	assert.Equal(t, 3, job.MaxRetries)

	updated, err := f.events.FindByID(ctx, event.ID)
	assert.NoError(t, err)
	assert.True(t, updated.Processed)
}

func TestCreateJobFromEventNoCrossListings(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	userID := f.node.Generate()
	itemID := f.node.Generate()
	f.addListing(t, userID, itemID, marketplacedomain.TypeMercari)
	event := f.addEvent(t, userID, itemID, marketplacedomain.TypeMercari)

	job, err := f.scheduler.CreateJobFromEvent(ctx, event)
	assert.NoError(t, err)
	assert.Nil(t, job)

	updated, err := f.events.FindByID(ctx, event.ID)
	assert.NoError(t, err)
	assert.True(t, updated.Processed)
}

func TestCreateJobFromEventNotActionable(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	userID := f.node.Generate()
	itemID := f.node.Generate()

	unverified := f.addEvent(t, userID, itemID, marketplacedomain.TypeMercari)
	unverified.Verified = false
	_, err := f.scheduler.CreateJobFromEvent(ctx, unverified)
	assert.ErrorIs(t, err, domain.ErrEventNotActionable)

	processed := f.addEvent(t, userID, itemID, marketplacedomain.TypeMercari)
	processed.Processed = true
	_, err = f.scheduler.CreateJobFromEvent(ctx, processed)
	assert.ErrorIs(t, err, domain.ErrEventNotActionable)

	orphan := f.addEvent(t, userID, itemID, marketplacedomain.TypeMercari)
	orphan.InventoryItemID = nil
	_, err = f.scheduler.CreateJobFromEvent(ctx, orphan)
	assert.ErrorIs(t, err, domain.ErrEventNotActionable)
}

func TestCreateJobFromEventConfirmPreference(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	userID := f.node.Generate()
	itemID := f.node.Generate()
	conn := marketplacedomain.Connection{
		ID:               f.node.Generate(),
		UserID:           userID,
		Marketplace:      marketplacedomain.TypeMercari,
		Credentials:      []byte(`{"access_token":"tok"}`),
		DelistPreference: marketplacedomain.DelistPreferenceConfirm,
		IsActive:         true,
	}
	assert.NoError(t, f.db.Create(&conn).Error)
	f.addListing(t, userID, itemID, marketplacedomain.TypeEbay)
	event := f.addEvent(t, userID, itemID, marketplacedomain.TypeMercari)

	job, err := f.scheduler.CreateJobFromEvent(ctx, event)
	assert.NoError(t, err)
	assert.NotNil(t, job)
	assert.True(t, job.RequiresUserConfirmation)
	assert.True(t, job.AwaitingConfirmation())
}
