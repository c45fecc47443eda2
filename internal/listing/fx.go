package listing

import (
	"github.com/smallbiznis/crosslist/internal/listing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("listing",
	fx.Provide(repository.Provide),
)
