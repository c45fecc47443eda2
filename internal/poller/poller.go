package poller

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/crosslist/internal/circuitbreaker"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	"github.com/smallbiznis/crosslist/internal/observability/metrics"
	"github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"github.com/smallbiznis/crosslist/internal/saleevent/normalizer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	retryAttempts  = 3
	retryBaseDelay = time.Second
	retryMaxDelay  = 10 * time.Second

	// Cooldown between users within one marketplace sweep. Failures widen
	// the cooldown up to the adaptive cap so a struggling API gets room.
	userCooldownMin  = 500 * time.Millisecond
	userCooldownMax  = 2 * time.Second
	adaptiveDelayCap = 5 * time.Second
)

// MarketplaceResult summarizes one marketplace sweep. A skipped sweep
// names its reason instead of reporting activity.
type MarketplaceResult struct {
	Marketplace     marketplacedomain.Type `json:"marketplace"`
	Skipped         bool                   `json:"skipped"`
	SkipReason      string                 `json:"skip_reason,omitempty"`
	UsersPolled     int                    `json:"users_polled"`
	ListingsChecked int                    `json:"listings_checked"`
	SalesDetected   int                    `json:"sales_detected"`
	Errors          []string               `json:"errors,omitempty"`
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	PollingCfg  *config.PollingConfigHolder
	Connections marketplacedomain.Repository
	Listings    listingdomain.Repository
	Registry    *adapters.Registry
	Breaker     circuitbreaker.Breaker
	Events      domain.Service
	Scheduler   delistingdomain.Scheduler
}

type Poller struct {
	log         *zap.Logger
	clock       clock.Clock
	pollingCfg  *config.PollingConfigHolder
	connections marketplacedomain.Repository
	listings    listingdomain.Repository
	registry    *adapters.Registry
	breaker     circuitbreaker.Breaker
	events      domain.Service
	scheduler   delistingdomain.Scheduler
	sleep       func(context.Context, time.Duration)
}

func NewPoller(p Params) *Poller {
	return &Poller{
		log:         p.Log.Named("poller"),
		clock:       p.Clock,
		pollingCfg:  p.PollingCfg,
		connections: p.Connections,
		listings:    p.Listings,
		registry:    p.Registry,
		breaker:     p.Breaker,
		events:      p.Events,
		scheduler:   p.Scheduler,
		sleep:       sleepCtx,
	}
}

// PollAllMarketplaces sweeps every polling-enabled marketplace and never
// fails as a whole: each marketplace reports its own outcome.
func (p *Poller) PollAllMarketplaces(ctx context.Context) map[marketplacedomain.Type]*MarketplaceResult {
	results := map[marketplacedomain.Type]*MarketplaceResult{}
	for tag, entry := range p.pollingCfg.Get().Marketplaces {
		marketplace, err := marketplacedomain.ParseType(tag)
		if err != nil {
			continue
		}
		if !entry.Enabled {
			results[marketplace] = &MarketplaceResult{
				Marketplace: marketplace,
				Skipped:     true,
				SkipReason:  "polling disabled",
			}
			continue
		}
		results[marketplace] = p.PollMarketplace(ctx, marketplace)
	}
	return results
}

// PollMarketplace sweeps one marketplace across every user holding an
// active connection. One user's failure widens the cooldown and counts
// against the breaker but never aborts the sweep.
func (p *Poller) PollMarketplace(ctx context.Context, marketplace marketplacedomain.Type) *MarketplaceResult {
	result := &MarketplaceResult{Marketplace: marketplace}

	entry, ok := p.pollingCfg.Get().Marketplaces[string(marketplace)]
	if !ok || !entry.Enabled {
		result.Skipped = true
		result.SkipReason = "polling disabled"
		return result
	}

	breakerKey := circuitbreaker.PollKey(string(marketplace))
	allowed, err := p.breaker.CanExecute(ctx, breakerKey)
	if err != nil {
		p.log.Warn("breaker check failed, allowing sweep",
			zap.String("key", breakerKey), zap.Error(err))
		allowed = true
	}
	if !allowed {
		result.Skipped = true
		result.SkipReason = "circuit breaker open"
		p.log.Info("skipping marketplace sweep, breaker open",
			zap.String("marketplace", string(marketplace)))
		return result
	}

	connections, err := p.connections.ListActiveConnections(ctx, marketplace)
	if err != nil {
		result.Errors = append(result.Errors, "list connections: "+err.Error())
		if berr := p.breaker.RecordFailure(ctx, breakerKey); berr != nil {
			p.log.Warn("breaker record failure", zap.Error(berr))
		}
		return result
	}

	cooldown := userCooldownMin
	for i := range connections {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}
		conn := &connections[i]

		checked, detected, err := p.pollUser(ctx, conn, entry)
		result.UsersPolled++
		result.ListingsChecked += checked
		result.SalesDetected += detected
		if err != nil {
			result.Errors = append(result.Errors, conn.UserID.String()+": "+err.Error())
			if berr := p.breaker.RecordFailure(ctx, breakerKey); berr != nil {
				p.log.Warn("breaker record failure", zap.Error(berr))
			}
			cooldown = min(cooldown*2, adaptiveDelayCap)
		} else {
			if berr := p.breaker.RecordSuccess(ctx, breakerKey); berr != nil {
				p.log.Warn("breaker record success", zap.Error(berr))
			}
			cooldown = max(cooldown/2, userCooldownMin)
			cooldown = min(cooldown, userCooldownMax)
		}

		if i < len(connections)-1 {
			p.sleep(ctx, cooldown)
		}
	}

	metrics.Pipeline().AddPollListingsChecked(string(marketplace), result.ListingsChecked)
	p.log.Info("marketplace sweep finished",
		zap.String("marketplace", string(marketplace)),
		zap.Int("users_polled", result.UsersPolled),
		zap.Int("listings_checked", result.ListingsChecked),
		zap.Int("sales_detected", result.SalesDetected),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// pollUser checks one user's pollable listings against the marketplace.
// The whole user sweep is retried with backoff when the adapter cannot
// even be built; individual listing failures are skipped.
func (p *Poller) pollUser(ctx context.Context, conn *marketplacedomain.Connection, entry config.MarketplacePolling) (int, int, error) {
	var adapter marketplacedomain.Adapter
	err := p.withRetry(ctx, func() error {
		var aerr error
		adapter, aerr = p.registry.NewAdapterForConnection(conn)
		return aerr
	})
	if err != nil {
		return 0, 0, err
	}

	lookback := time.Duration(entry.LookbackDays) * 24 * time.Hour
	listings, err := p.listings.ListPollable(ctx, conn.UserID, conn.Marketplace, lookback, entry.MaxItemsPerPoll)
	if err != nil {
		return 0, 0, err
	}

	checked := 0
	detected := 0
	for i := range listings {
		listing := &listings[i]
		var snapshot *marketplacedomain.ListingSnapshot
		err := p.withRetry(ctx, func() error {
			var serr error
			snapshot, serr = adapter.GetListingByID(ctx, listing.ExternalListingID)
			return serr
		})
		if err != nil {
			p.log.Warn("listing check failed",
				zap.String("marketplace", string(conn.Marketplace)),
				zap.String("external_listing_id", listing.ExternalListingID),
				zap.Error(err),
			)
			continue
		}
		checked++

		if !snapshot.Sold() {
			continue
		}
		if err := p.recordSale(ctx, listing, snapshot); err != nil {
			p.log.Warn("failed to record detected sale",
				zap.String("listing_id", listing.ID.String()), zap.Error(err))
			continue
		}
		detected++
		metrics.Pipeline().IncPollSaleDetected(string(conn.Marketplace))
	}
	return checked, detected, nil
}

// recordSale persists the sale locally and feeds the delisting pipeline.
// Duplicate events (the webhook already arrived) stop here quietly.
func (p *Poller) recordSale(ctx context.Context, listing *listingdomain.Listing, snapshot *marketplacedomain.ListingSnapshot) error {
	if err := p.listings.MarkSold(ctx, listing.ID, snapshot.SalePrice, snapshot.SaleDate); err != nil &&
		!errors.Is(err, listingdomain.ErrListingNotFound) {
		return err
	}

	draft, err := normalizer.NormalizeSnapshot(listing, snapshot)
	if err != nil {
		return err
	}
	recorded, err := p.events.RecordEvent(ctx, domain.RecordRequest{
		Draft:           draft,
		UserID:          listing.UserID,
		ListingID:       &listing.ID,
		InventoryItemID: &listing.InventoryItemID,
		Source:          domain.SourcePoll,
		Verified:        true,
	})
	if err != nil {
		return err
	}
	if !recorded.Created {
		return nil
	}

	if _, err := p.scheduler.CreateJobFromEvent(ctx, recorded.Event); err != nil &&
		!errors.Is(err, delistingdomain.ErrEventNotActionable) {
		return err
	}
	return nil
}

func (p *Poller) withRetry(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryAttempts || ctx.Err() != nil {
			break
		}
		p.sleep(ctx, delay)
		delay = min(delay*2, retryMaxDelay)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
