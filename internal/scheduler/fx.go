package scheduler

import (
	"context"

	"github.com/smallbiznis/crosslist/internal/poller"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(func(p *poller.Poller) SalePoller { return p }),
	fx.Provide(New),
	fx.Invoke(Run),
)

// Run starts the scheduler loop on application start and stops it on
// shutdown.
func Run(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
