package models

// StatusSnapshot — ответ EA на get_status. Read-only, не кэшируется между вызовами.
type StatusSnapshot struct {
	Symbols []string
	Bid     float64
	Ask     float64
	Balance float64
	Equity  float64
	// Extra carries endpoint-specific fields we pass through untouched.
	Extra map[string]any
}

// MarketData — одна свечка + индикаторы по символу из get_market_data.
type MarketData struct {
	Symbol     string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}
