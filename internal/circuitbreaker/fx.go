package circuitbreaker

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Clock clock.Clock
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func New(p Params) (Breaker, error) {
	if p.Cfg.BreakerStore == "redis" && p.Redis != nil {
		return NewRedisBreaker(DefaultConfig(), p.Redis)
	}
	return NewMemoryBreaker(DefaultConfig(), p.Clock, p.Log), nil
}

var Module = fx.Module("circuitbreaker",
	fx.Provide(New),
)
