package models

import "time"

// Direction как отдаёт аналитический движок: "buy"/"sell" торгуем, всё
// остальное (в т.ч. "wait" и пустая строка) — пропуск символа в этом проходе.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionWait Direction = "wait"
)

// Actionable reports whether the decision should turn into a trade signal.
func (d Direction) Actionable() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Decision — результат анализа одного символа внешним движком.
type Decision struct {
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Rationale  string
}

// Stats — счётчики работы агента. Пишет только цикл, читают все.
type Stats struct {
	SignalsSent      int64     `json:"signals_sent"`
	SuccessfulTrades int64     `json:"successful_trades"`
	FailedTrades     int64     `json:"failed_trades"`
	Errors           int64     `json:"errors"`
	StartTime        time.Time `json:"start_time"`
	LastSignalTime   time.Time `json:"last_signal_time"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
}

// AnalysisRecord — строка истории анализа для append-only хранилища.
type AnalysisRecord struct {
	Timestamp  time.Time   `json:"timestamp"`
	Symbol     string      `json:"symbol"`
	MarketData *MarketData `json:"market_data,omitempty"`
	Decision   Decision    `json:"decision"`
}
