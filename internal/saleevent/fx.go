package saleevent

import (
	"github.com/smallbiznis/crosslist/internal/saleevent/repository"
	"github.com/smallbiznis/crosslist/internal/saleevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("saleevent",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
