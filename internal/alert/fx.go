package alert

import (
	"github.com/watchkeep/watchkeep/internal/alert/repository"
	"github.com/watchkeep/watchkeep/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
