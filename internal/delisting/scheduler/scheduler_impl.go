package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	"github.com/smallbiznis/crosslist/internal/delisting/domain"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	saleeventdomain "github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Jobs        domain.Repository
	Listings    listingdomain.Repository
	Connections marketplacedomain.Repository
	Events      saleeventdomain.Service
	Audit       auditdomain.Service
}

type Scheduler struct {
	cfg         config.Config
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	jobs        domain.Repository
	listings    listingdomain.Repository
	connections marketplacedomain.Repository
	events      saleeventdomain.Service
	audit       auditdomain.Service
}

func NewScheduler(p Params) domain.Scheduler {
	return &Scheduler{
		cfg:         p.Cfg,
		log:         p.Log.Named("delisting.scheduler"),
		clock:       p.Clock,
		genID:       p.GenID,
		jobs:        p.Jobs,
		listings:    p.Listings,
		connections: p.Connections,
		events:      p.Events,
		audit:       p.Audit,
	}
}

// CreateJobFromEvent turns a verified, unprocessed sale event into a
// delisting job covering the item's live listings on every other
// marketplace. Events with nothing to delist are marked processed without
// a job.
func (s *Scheduler) CreateJobFromEvent(ctx context.Context, event *saleeventdomain.SaleEvent) (*domain.DelistingJob, error) {
	if event == nil || !event.Verified || event.Processed || event.InventoryItemID == nil {
		return nil, domain.ErrEventNotActionable
	}

	itemID := *event.InventoryItemID
	listings, err := s.listings.ListLiveByItemExcluding(ctx, event.UserID, itemID, event.Marketplace)
	if err != nil {
		return nil, err
	}

	if len(listings) == 0 {
		s.log.Debug("sale event has no cross-listings to delist",
			zap.String("event_id", event.ID.String()),
			zap.String("marketplace", string(event.Marketplace)),
		)
		if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	targeted := distinctMarketplaces(listings)
	now := s.clock.Now()

	job := &domain.DelistingJob{
		ID:                       s.genID.Generate(),
		UserID:                   event.UserID,
		InventoryItemID:          itemID,
		SourceEventID:            &event.ID,
		SourceMarketplace:        event.Marketplace,
		Status:                   domain.JobStatusPending,
		MarketplacesTargeted:     datatypes.NewJSONSlice(targeted),
		RequiresUserConfirmation: s.requiresConfirmation(ctx, event),
		ScheduledFor:             now,
		MaxRetries:               s.cfg.DelistMaxRetries,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
		// The job exists either way; the event staying unprocessed only
		// risks a second job attempt, which the dedup hash prevents.
		s.log.Warn("failed to mark sale event processed",
			zap.String("event_id", event.ID.String()), zap.Error(err))
	}

	jobID := job.ID.String()
	_ = s.audit.AuditLog(ctx, event.UserID, auditdomain.ActorTypeSystem, nil,
		auditdomain.ActionJobScheduled, auditdomain.TargetTypeDelistingJob, &jobID,
		map[string]any{
			"source_event_id":       event.ID.String(),
			"source_marketplace":    string(event.Marketplace),
			"marketplaces_targeted": targeted,
			"requires_confirmation": job.RequiresUserConfirmation,
		})

	s.log.Info("delisting job scheduled",
		zap.String("job_id", jobID),
		zap.String("source_marketplace", string(event.Marketplace)),
		zap.Strings("marketplaces_targeted", targeted),
		zap.Bool("requires_confirmation", job.RequiresUserConfirmation),
	)
	return job, nil
}

// requiresConfirmation reads the user's delist preference from the
// connection where the sale happened; a missing connection falls back to
// the deployment default.
func (s *Scheduler) requiresConfirmation(ctx context.Context, event *saleeventdomain.SaleEvent) bool {
	conn, err := s.connections.FindActiveConnection(ctx, event.UserID, event.Marketplace)
	if err != nil {
		if !errors.Is(err, marketplacedomain.ErrConnectionNotFound) {
			s.log.Warn("failed to resolve delist preference",
				zap.String("marketplace", string(event.Marketplace)), zap.Error(err))
		}
		return s.cfg.DelistConfirmDefault
	}
	return conn.RequiresConfirmation()
}

func distinctMarketplaces(listings []listingdomain.Listing) []string {
	seen := make(map[string]struct{}, len(listings))
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		tag := string(l.Marketplace)
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
