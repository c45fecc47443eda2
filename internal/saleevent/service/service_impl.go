package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"github.com/smallbiznis/crosslist/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("saleevent.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// RecordEvent persists a normalized draft. The unique index on event_hash
// is the dedup authority: concurrent writers race on the insert and the
// loser resolves the winner's row.
func (s *Service) RecordEvent(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
	if req.Draft == nil || req.Draft.EventHash == "" {
		return nil, domain.ErrInvalidPayload
	}

	now := s.clock.Now()
	event := &domain.SaleEvent{
		ID:                    s.genID.Generate(),
		UserID:                req.UserID,
		InventoryItemID:       req.InventoryItemID,
		ListingID:             req.ListingID,
		Marketplace:           req.Draft.Marketplace,
		EventType:             req.Draft.EventType,
		Source:                req.Source,
		ExternalEventID:       req.Draft.ExternalEventID,
		ExternalListingID:     req.Draft.ExternalListingID,
		ExternalTransactionID: req.Draft.ExternalTransactionID,
		SalePrice:             req.Draft.SalePrice,
		SaleCurrency:          req.Draft.SaleCurrency,
		SaleDate:              req.Draft.SaleDate.UTC(),
		BuyerID:               req.Draft.BuyerID,
		PaymentStatus:         req.Draft.PaymentStatus,
		RawData:               datatypes.JSON(req.Draft.RawData),
		EventHash:             req.Draft.EventHash,
		Verified:              req.Verified,
		Processed:             false,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err := s.repo.Insert(ctx, event)
	if err == nil {
		metrics.Pipeline().IncSaleEvent(event.Marketplace.String(), req.Source, "created")
		s.log.Info("sale event recorded",
			zap.String("marketplace", event.Marketplace.String()),
			zap.String("source", req.Source),
			zap.String("external_listing_id", event.ExternalListingID),
		)
		return &domain.RecordResult{Created: true, Event: event}, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	existing, findErr := s.repo.FindByHash(ctx, req.Draft.EventHash)
	if findErr != nil {
		return nil, findErr
	}
	metrics.Pipeline().IncSaleEvent(event.Marketplace.String(), req.Source, "duplicate")
	s.log.Debug("sale event deduplicated",
		zap.String("marketplace", event.Marketplace.String()),
		zap.String("event_hash", req.Draft.EventHash),
	)
	return &domain.RecordResult{Created: false, Event: existing, DuplicateOf: existing.ID}, nil
}

func (s *Service) MarkProcessed(ctx context.Context, id snowflake.ID) error {
	return s.repo.MarkProcessed(ctx, id)
}
