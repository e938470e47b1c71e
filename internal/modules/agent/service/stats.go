package service

import (
	"sync/atomic"
	"time"

	"trade_agent/internal/models"
)

// Stats — счётчики работы агента. Пишет только горутина цикла, внешние
// читатели (admin-эндпоинт, метрики) ходят через Snapshot, поэтому всё
// на атомиках.
type Stats struct {
	signalsSent      atomic.Int64
	successfulTrades atomic.Int64
	failedTrades     atomic.Int64
	errors           atomic.Int64

	startUnix      atomic.Int64
	lastSignalUnix atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) MarkStart(t time.Time) { s.startUnix.Store(t.Unix()) }

func (s *Stats) AddSignalSent(t time.Time) {
	s.signalsSent.Add(1)
	s.successfulTrades.Add(1)
	s.lastSignalUnix.Store(t.Unix())
}

func (s *Stats) AddFailedTrade() { s.failedTrades.Add(1) }
func (s *Stats) AddError()       { s.errors.Add(1) }

func (s *Stats) SignalsSent() int64      { return s.signalsSent.Load() }
func (s *Stats) SuccessfulTrades() int64 { return s.successfulTrades.Load() }
func (s *Stats) FailedTrades() int64     { return s.failedTrades.Load() }
func (s *Stats) Errors() int64           { return s.errors.Load() }

// Snapshot — консистентная для читателя копия с посчитанным uptime.
func (s *Stats) Snapshot() models.Stats {
	out := models.Stats{
		SignalsSent:      s.signalsSent.Load(),
		SuccessfulTrades: s.successfulTrades.Load(),
		FailedTrades:     s.failedTrades.Load(),
		Errors:           s.errors.Load(),
	}
	if u := s.startUnix.Load(); u != 0 {
		out.StartTime = time.Unix(u, 0)
		out.UptimeSeconds = int64(time.Since(out.StartTime).Seconds())
	}
	if u := s.lastSignalUnix.Load(); u != 0 {
		out.LastSignalTime = time.Unix(u, 0)
	}
	return out
}
