package service

import (
	"context"
	"sync"

	"trade_agent/internal/models"
)

// History — append-only сток истории анализа. Ошибки записи агент логирует,
// но не пробрасывает: хранилище не должно ронять торговый цикл.
type History interface {
	Record(ctx context.Context, rec models.AnalysisRecord) error
}

// Memory держит историю в памяти — дефолт без DATABASE_DSN и для тестов.
type Memory struct {
	mu   sync.RWMutex
	data []models.AnalysisRecord
}

// NewMemory instance
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, rec models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, rec)
	return nil
}

// Records — копия накопленной истории.
func (m *Memory) Records() []models.AnalysisRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AnalysisRecord, len(m.data))
	copy(out, m.data)
	return out
}
