package models

import "time"

// Action — что просим сделать у Expert Advisor.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
)

// Valid reports whether the action is one of the three values the EA accepts.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionClose:
		return true
	}
	return false
}

// Signal — торговый сигнал для EA. Цена 0 = рыночная / уровень не задан.
// Immutable after construction; validated by the transport before any I/O.
type Signal struct {
	Action     Action
	Symbol     string
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Timestamp  time.Time
}
