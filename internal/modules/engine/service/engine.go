package service

import (
	"context"

	"trade_agent/internal/models"
)

// Engine — внешний аналитический коллаборатор: по рыночным данным отдаёт
// решение по одному символу. Для агента это чёрный ящик.
type Engine interface {
	Analyze(ctx context.Context, symbol string, md *models.MarketData) (models.Decision, error)
}
