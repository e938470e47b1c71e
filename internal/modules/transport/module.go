package transport

import (
	"go.uber.org/fx"

	"trade_agent/internal/modules/transport/service"
)

// Module поднимает клиента двухканальной связи с EA. Соединением управляет
// агент (connect при старте, disconnect при остановке), поэтому хуков
// жизненного цикла здесь нет.
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(
			service.NewClient, // *service.Client
		),
	)
}
