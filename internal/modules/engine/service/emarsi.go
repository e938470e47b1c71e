package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
)

// EMARSI — встроенный движок: пересечение EMA + фильтр RSI по ценам закрытия.
// SL считается как процент от входа, TP — как RR-мультипликатор дистанции до SL.
type EMARSI struct {
	cfg *config.Config

	mu       sync.Mutex
	emaShort map[string]float64
	emaLong  map[string]float64
	rsi      map[string]*rsiState
}

type rsiState struct {
	prev        float64
	avgGain     float64
	avgLoss     float64
	initialized bool
}

func NewEMARSI(cfg *config.Config) *EMARSI {
	return &EMARSI{
		cfg:      cfg,
		emaShort: map[string]float64{},
		emaLong:  map[string]float64{},
		rsi:      map[string]*rsiState{},
	}
}

func (s *EMARSI) Analyze(_ context.Context, symbol string, md *models.MarketData) (models.Decision, error) {
	if md == nil || md.Close <= 0 {
		return models.Decision{}, errors.Errorf("no usable close price for %s", symbol)
	}

	direction, ok := s.update(symbol, md.Close)
	if !ok {
		return models.Decision{Direction: models.DirectionWait}, nil
	}

	stopPct := s.cfg.Strategy.StopPct / 100.0
	if stopPct <= 0 {
		stopPct = 0.005
	}
	rr := s.cfg.Strategy.TakeProfitRR
	if rr <= 0 {
		rr = 3.0
	}

	entry := md.Close
	priceRisk := entry * stopPct

	var sl, tp float64
	if direction == models.DirectionBuy {
		sl = entry - priceRisk
		tp = entry + rr*priceRisk
	} else {
		sl = entry + priceRisk
		tp = entry - rr*priceRisk
	}

	return models.Decision{
		Direction:  direction,
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Rationale:  s.dump(symbol),
	}, nil
}

func (s *EMARSI) update(symbol string, price float64) (models.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kShort := 2.0 / float64(s.cfg.Strategy.EMAShort+1)
	kLong := 2.0 / float64(s.cfg.Strategy.EMALong+1)
	s.emaShort[symbol] = s.emaShort[symbol] + kShort*(price-s.emaShort[symbol])
	s.emaLong[symbol] = s.emaLong[symbol] + kLong*(price-s.emaLong[symbol])

	r := s.rsi[symbol]
	if r == nil {
		r = &rsiState{}
		s.rsi[symbol] = r
	}
	if !r.initialized {
		r.prev = price
		r.initialized = true
		return models.DirectionWait, false
	}
	change := price - r.prev
	gain := 0.0
	loss := 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	alpha := 1.0 / float64(s.cfg.Strategy.RSIPeriod)
	if r.avgGain == 0 && r.avgLoss == 0 {
		r.avgGain, r.avgLoss = gain, loss
	} else {
		r.avgGain = (1-alpha)*r.avgGain + alpha*gain
		r.avgLoss = (1-alpha)*r.avgLoss + alpha*loss
	}
	r.prev = price
	rs := 0.0
	if r.avgLoss != 0 {
		rs = r.avgGain / r.avgLoss
	}
	rsi := 100 - (100 / (1 + rs))

	if s.emaShort[symbol] > s.emaLong[symbol] && rsi < s.cfg.Strategy.RSIOversold {
		return models.DirectionBuy, true
	}
	if s.emaShort[symbol] < s.emaLong[symbol] && rsi > s.cfg.Strategy.RSIOverbought {
		return models.DirectionSell, true
	}
	return models.DirectionWait, false
}

func (s *EMARSI) dump(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("EMA_S=%.4f EMA_L=%.4f", s.emaShort[symbol], s.emaLong[symbol])
}
