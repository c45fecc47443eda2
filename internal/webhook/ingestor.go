package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/config"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"github.com/smallbiznis/crosslist/internal/ratelimit"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"github.com/smallbiznis/crosslist/internal/saleevent/normalizer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrRateLimited      = errors.New("webhook rate limited")
	ErrInvalidHandshake = errors.New("invalid webhook handshake")
)

// IngestResult reports what one webhook delivery produced.
type IngestResult struct {
	EventID   snowflake.ID  `json:"event_id"`
	Created   bool          `json:"created"`
	Duplicate bool          `json:"duplicate"`
	JobID     *snowflake.ID `json:"job_id,omitempty"`
}

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Connections marketplacedomain.Repository
	Listings    listingdomain.Repository
	Registry    *adapters.Registry
	Events      domain.Service
	Scheduler   delistingdomain.Scheduler
	Limiter     *ratelimit.WebhookLimiter `optional:"true"`
}

type Ingestor struct {
	cfg         config.Config
	log         *zap.Logger
	connections marketplacedomain.Repository
	listings    listingdomain.Repository
	registry    *adapters.Registry
	events      domain.Service
	scheduler   delistingdomain.Scheduler
	limiter     *ratelimit.WebhookLimiter
}

func NewIngestor(p Params) *Ingestor {
	return &Ingestor{
		cfg:         p.Cfg,
		log:         p.Log.Named("webhook"),
		connections: p.Connections,
		listings:    p.Listings,
		registry:    p.Registry,
		events:      p.Events,
		scheduler:   p.Scheduler,
		limiter:     p.Limiter,
	}
}

// IngestWebhook runs one delivery through normalize, listing match,
// signature verification and recording. The signature is checked with the
// matched listing owner's webhook secret, so an unknown listing is
// rejected before any verification is attempted.
func (i *Ingestor) IngestWebhook(ctx context.Context, marketplace marketplacedomain.Type, payload []byte, headers http.Header) (*IngestResult, error) {
	tag := string(marketplace)

	if i.limiter.Enabled() {
		limit, err := i.limiter.AllowMarketplace(ctx, tag)
		if err != nil {
			i.log.Warn("marketplace rate limit check failed", zap.String("marketplace", tag), zap.Error(err))
		} else if !limit.Allowed {
			metrics.Pipeline().IncWebhookEvent(tag, "rate_limited")
			return nil, ErrRateLimited
		}
	}

	draft, err := normalizer.Normalize(marketplace, payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedMarketplace):
			metrics.Pipeline().IncWebhookEvent(tag, "unsupported")
		default:
			metrics.Pipeline().IncWebhookEvent(tag, "invalid_payload")
		}
		return nil, err
	}

	listing, err := i.listings.FindByExternalID(ctx, marketplace, draft.ExternalListingID)
	if err != nil {
		if errors.Is(err, listingdomain.ErrListingNotFound) {
			metrics.Pipeline().IncWebhookEvent(tag, "unknown_listing")
		}
		return nil, err
	}

	if i.limiter.Enabled() {
		limit, err := i.limiter.AllowUser(ctx, listing.UserID.String())
		if err != nil {
			i.log.Warn("user rate limit check failed", zap.String("user_id", listing.UserID.String()), zap.Error(err))
		} else if !limit.Allowed {
			metrics.Pipeline().IncWebhookEvent(tag, "rate_limited")
			return nil, ErrRateLimited
		}
	}

	conn, err := i.connections.FindActiveConnection(ctx, listing.UserID, marketplace)
	if err != nil {
		metrics.Pipeline().IncWebhookEvent(tag, "no_connection")
		return nil, err
	}
	adapter, err := i.registry.NewAdapterForConnection(conn)
	if err != nil {
		metrics.Pipeline().IncWebhookEvent(tag, "error")
		return nil, err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		metrics.Pipeline().IncWebhookEvent(tag, "invalid_signature")
		i.log.Warn("webhook signature rejected",
			zap.String("marketplace", tag),
			zap.String("external_listing_id", draft.ExternalListingID),
		)
		return nil, err
	}

	recorded, err := i.events.RecordEvent(ctx, domain.RecordRequest{
		Draft:           draft,
		UserID:          listing.UserID,
		ListingID:       &listing.ID,
		InventoryItemID: &listing.InventoryItemID,
		Source:          domain.SourceWebhook,
		Verified:        true,
	})
	if err != nil {
		metrics.Pipeline().IncWebhookEvent(tag, "error")
		return nil, err
	}

	result := &IngestResult{EventID: recorded.Event.ID}
	if !recorded.Created {
		result.Duplicate = true
		metrics.Pipeline().IncWebhookEvent(tag, "duplicate")
		return result, nil
	}
	result.Created = true
	metrics.Pipeline().IncWebhookEvent(tag, "accepted")

	if err := i.listings.MarkSold(ctx, listing.ID, &draft.SalePrice, &draft.SaleDate); err != nil &&
		!errors.Is(err, listingdomain.ErrListingNotFound) {
		i.log.Warn("failed to mark listing sold",
			zap.String("listing_id", listing.ID.String()), zap.Error(err))
	}

	job, err := i.scheduler.CreateJobFromEvent(ctx, recorded.Event)
	if err != nil && !errors.Is(err, delistingdomain.ErrEventNotActionable) {
		i.log.Error("failed to schedule delisting job",
			zap.String("event_id", recorded.Event.ID.String()), zap.Error(err))
		return result, nil
	}
	if job != nil {
		result.JobID = &job.ID
	}
	return result, nil
}

// VerifyHandshake answers a subscription handshake GET by echoing the
// challenge. When a verify token is configured the caller must present it.
func (i *Ingestor) VerifyHandshake(marketplace marketplacedomain.Type, query url.Values) (string, error) {
	if marketplace != marketplacedomain.TypeFacebookMarketplace {
		return "", marketplacedomain.ErrWebhookNotSupported
	}
	if mode := query.Get("hub.mode"); mode != "" && mode != "subscribe" {
		return "", ErrInvalidHandshake
	}
	if token := i.cfg.WebhookVerifyToken; token != "" && query.Get("hub.verify_token") != token {
		return "", ErrInvalidHandshake
	}
	challenge := query.Get("hub.challenge")
	if challenge == "" {
		return "", ErrInvalidHandshake
	}
	return challenge, nil
}
