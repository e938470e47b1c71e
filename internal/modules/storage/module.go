package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_agent/internal/modules/config"
	"trade_agent/internal/modules/storage/service"
	"trade_agent/pkg/db"
)

// Module выбирает реализацию истории: postgres при заданном DSN,
// иначе in-memory.
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.History, error) {
				if cfg.DB == "" {
					log.Info("no db_dsn configured, keeping analysis history in memory")
					return service.NewMemory(), nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return service.NewPg(db.NewPgTxManager(poolMaster, log)), nil
			},
		),
	)
}
