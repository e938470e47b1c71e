package agent

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_agent/internal/modules/agent/service"
	"trade_agent/internal/modules/config"
	enginesvc "trade_agent/internal/modules/engine/service"
	storagesvc "trade_agent/internal/modules/storage/service"
	transportsvc "trade_agent/internal/modules/transport/service"

	"trade_agent/internal/notify"
)

func Module() fx.Option {
	return fx.Module("agent",
		fx.Provide(
			func(
				cfg *config.Config,
				log *zap.Logger,
				tr *transportsvc.Client,
				eng enginesvc.Engine,
				hist storagesvc.History,
				n notify.Notifier,
				tracer opentracing.Tracer,
			) *service.Agent {
				return service.New(cfg, log, tr, eng, hist, n, tracer)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			a *service.Agent,
			log *zap.Logger,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// handshake + первый статус синхронно: неудача старта
					// должна уронить запуск приложения, а не тихо крутиться
					if err := a.Connect(); err != nil {
						return err
					}
					go func() {
						if err := a.Start(ctx); err != nil {
							log.Error("agent loop exited", zap.Error(err))
						}
					}()
					return nil
				},
				OnStop: func(_ context.Context) error {
					a.Stop()
					return nil
				},
			})
		}),
	)
}
