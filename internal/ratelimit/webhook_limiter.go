package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/crosslist/internal/config"
)

const (
	keyWebhookMarketplace = "webhook:ingest:marketplace:%s"
	keyWebhookUser        = "webhook:ingest:user:%s"
)

// WebhookLimiter bounds inbound webhook traffic per marketplace and per
// user. A disabled or unconfigured limiter allows everything.
type WebhookLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if !cfg.RateLimitEnabled || client == nil {
		return &WebhookLimiter{}
	}
	return &WebhookLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.WebhookIngestRate,
		burst:   cfg.WebhookIngestBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *WebhookLimiter) AllowMarketplace(ctx context.Context, marketplace string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookMarketplace, strings.TrimSpace(marketplace))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

func (l *WebhookLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookUser, strings.TrimSpace(userID))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
