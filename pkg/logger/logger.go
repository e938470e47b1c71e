package logger

import (
	"go.uber.org/zap"
)

// New строит продакшн-логгер с полем service. Логгер передаётся
// конструкторам явно, глобальных инстансов здесь нет.
func New(serviceName string) (*zap.Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return l.With(
		zap.String("service", serviceName),
	), nil
}

// NewNop — заглушка для тестов.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
