package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/crosslist/internal/clock"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"github.com/smallbiznis/crosslist/internal/saleevent/normalizer"
	"github.com/smallbiznis/crosslist/internal/saleevent/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.SaleEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	return NewService(Params{
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: node,
		Repo:  repository.Provide(db, clk),
	})
}

func saleDraft(t *testing.T) *domain.Draft {
	t.Helper()
	draft, err := normalizer.Normalize(marketplacedomain.TypeMercari, []byte(`{
		"event_id": "evt_1",
		"item_id": "itm_1",
		"sold_price": 30,
		"sold_date": "2026-08-20T10:30:00Z"
	}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return draft
}

func TestRecordEventDedupIdempotence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.RecordEvent(ctx, domain.RecordRequest{
		Draft:    saleDraft(t),
		UserID:   101,
		Source:   domain.SourceWebhook,
		Verified: true,
	})
	assert.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotNil(t, first.Event)
	assert.True(t, first.Event.Verified)
	assert.False(t, first.Event.Processed)

	second, err := svc.RecordEvent(ctx, domain.RecordRequest{
		Draft:    saleDraft(t),
		UserID:   101,
		Source:   domain.SourcePoll,
		Verified: true,
	})
	assert.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Event.ID, second.DuplicateOf)
	assert.Equal(t, first.Event.ID, second.Event.ID)
}

func TestRecordEventRejectsEmptyDraft(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RecordEvent(context.Background(), domain.RecordRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestMarkProcessed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.RecordEvent(ctx, domain.RecordRequest{
		Draft:    saleDraft(t),
		UserID:   101,
		Source:   domain.SourceWebhook,
		Verified: true,
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.MarkProcessed(ctx, result.Event.ID))
	assert.ErrorIs(t, svc.MarkProcessed(ctx, result.Event.ID), domain.ErrEventNotFound)
}
