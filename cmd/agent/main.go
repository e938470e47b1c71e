package main

import (
	"context"
	"log"

	"trade_agent/internal/modules/admin"
	"trade_agent/internal/modules/agent"
	"trade_agent/internal/modules/config"
	"trade_agent/internal/modules/engine"
	"trade_agent/internal/modules/storage"
	"trade_agent/internal/modules/transport"
	"trade_agent/internal/notify"
	"trade_agent/pkg/logger"
	"trade_agent/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "trade-agent"

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			func() (*zap.Logger, error) {
				return logger.New(serviceName)
			},
			func(lc fx.Lifecycle, cfg *config.Config, l *zap.Logger) (opentracing.Tracer, error) {
				tracer, closeTracer, err := tracing.InitTracer(tracing.Config{
					ServiceName: serviceName,
					Host:        cfg.Jaeger.Host,
					Port:        cfg.Jaeger.Port,
				}, l)
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						closeTracer()
						return nil
					},
				})
				return tracer, nil
			},
			// Notifier: если TELEGRAM_* нет — используем stdout
			func(cfg *config.Config) notify.Notifier {
				if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
					if tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID); err == nil {
						return tg
					}
				}
				return notify.NewStdout()
			},
		),
		config.Module(),
		transport.Module(),
		engine.Module(),
		storage.Module(),
		agent.Module(),
		admin.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}

	<-app.Done()

	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}
