package delisting

import (
	"github.com/smallbiznis/crosslist/internal/delisting/engine"
	"github.com/smallbiznis/crosslist/internal/delisting/repository"
	"github.com/smallbiznis/crosslist/internal/delisting/retry"
	"github.com/smallbiznis/crosslist/internal/delisting/scheduler"
	"go.uber.org/fx"
)

var Module = fx.Module("delisting",
	fx.Provide(repository.Provide),
	fx.Provide(scheduler.NewScheduler),
	fx.Provide(engine.NewEngine),
	fx.Provide(retry.NewManager),
)
