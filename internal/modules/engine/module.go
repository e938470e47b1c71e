package engine

import (
	"go.uber.org/fx"

	"trade_agent/internal/modules/config"
	"trade_agent/internal/modules/engine/service"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(cfg *config.Config) service.Engine {
				return service.NewEMARSI(cfg)
			},
		),
	)
}
