package marketplace

import (
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/depop"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/ebay"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/etsy"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/facebook"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/grailed"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/mercari"
	"github.com/smallbiznis/crosslist/internal/marketplace/adapters/poshmark"
	"github.com/smallbiznis/crosslist/internal/marketplace/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("marketplace",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			ebay.NewFactory(),
			poshmark.NewFactory(),
			facebook.NewFactory(),
			mercari.NewFactory(),
			etsy.NewFactory(),
			depop.NewFactory(),
			grailed.NewFactory(),
		)
	}),
)
