package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
)

// Transport — то, что агенту нужно от двухканального клиента.
type Transport interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	LastError() string
	SendSignal(sig models.Signal) error
	GetStatus() (*models.StatusSnapshot, error)
	GetMarketData(symbol string) (*models.MarketData, error)
}

// Engine — внешний аналитический движок.
type Engine interface {
	Analyze(ctx context.Context, symbol string, md *models.MarketData) (models.Decision, error)
}

// History — append-only сток истории анализа.
type History interface {
	Record(ctx context.Context, rec models.AnalysisRecord) error
}

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// State агента. Stopped — терминальное, из него не возвращаемся.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	// квант сна между проверками интервала — ограничивает busy-wait
	tickQuantum = 100 * time.Millisecond
	// пауза после падения целого прохода, чтобы не молотить EA в tight loop
	errorCooldown = 5 * time.Second
)

// Agent — супервизор: по интервалу проходит по отслеживаемым символам,
// спрашивает движок и доставляет actionable-решения через транспорт.
// Ошибки одного символа изолируются внутри прохода, цикл живёт бесконечно.
type Agent struct {
	cfg    *config.Config
	log    *zap.Logger
	tr     Transport
	eng    Engine
	hist   History
	n      Notifier
	tracer opentracing.Tracer

	stats   *Stats
	symbols []string

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	lastPass time.Time
}

func New(
	cfg *config.Config,
	log *zap.Logger,
	tr Transport,
	eng Engine,
	hist History,
	n Notifier,
	tracer opentracing.Tracer,
) *Agent {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	return &Agent{
		cfg:    cfg,
		log:    log,
		tr:     tr,
		eng:    eng,
		hist:   hist,
		n:      n,
		tracer: tracer,
		stats:  NewStats(),
		done:   make(chan struct{}),
	}
}

// Connect поднимает транспорт (handshake внутри) и забирает первый статус:
// из него берётся список отслеживаемых символов, иначе fallback из конфига.
func (a *Agent) Connect() error {
	if err := a.tr.Connect(); err != nil {
		return errors.Wrap(err, "connect to endpoint")
	}

	status, err := a.tr.GetStatus()
	if err != nil {
		a.tr.Disconnect()
		return errors.Wrap(err, "fetch endpoint status")
	}

	if len(status.Symbols) > 0 {
		a.symbols = append([]string(nil), status.Symbols...)
	} else {
		a.symbols = append([]string(nil), a.cfg.Agent.Symbols...)
		a.log.Warn("endpoint reported no symbols, using configured fallback",
			zap.Strings("symbols", a.symbols))
	}

	a.stats.MarkStart(time.Now())
	a.state.Store(int32(StateConnected))

	a.log.Info("connected to expert advisor",
		zap.Strings("symbols", a.symbols),
		zap.Float64("balance", status.Balance),
		zap.Float64("equity", status.Equity),
	)
	return nil
}

// SetSymbols — явный внешний оверрайд отслеживаемого набора. Звать до Start.
func (a *Agent) SetSymbols(symbols []string) {
	a.symbols = append([]string(nil), symbols...)
}

func (a *Agent) Symbols() []string {
	return append([]string(nil), a.symbols...)
}

func (a *Agent) State() State {
	return State(a.state.Load())
}

// Stats — снимок счётчиков, можно звать в любой момент.
func (a *Agent) Stats() models.Stats {
	return a.stats.Snapshot()
}

// Start крутит основной цикл до отмены ctx или Stop. Если агент ещё не
// подключён — подключается сам; неудача здесь фатальна и переводит в Stopped.
func (a *Agent) Start(ctx context.Context) error {
	switch a.State() {
	case StateStopped:
		return errors.New("agent is stopped, construct a new one")
	case StateRunning:
		return errors.New("agent already running")
	case StateDisconnected:
		if err := a.Connect(); err != nil {
			a.state.Store(int32(StateStopped))
			close(a.done)
			return err
		}
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.state.Store(int32(StateRunning))
	a.n.Sendf("🚀 agent started: %d symbols, interval %s, dry_run=%v",
		len(a.symbols), a.cfg.Agent.PollInterval, a.cfg.Agent.DryRun)

	defer func() {
		a.tr.Disconnect()
		a.state.Store(int32(StateStopped))
		a.n.Send("⏹ agent stopped")
		a.log.Info("agent stopped")
		close(a.done)
	}()

	ticker := time.NewTicker(tickQuantum)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(a.lastPass) < a.cfg.Agent.PollInterval {
				continue
			}
			a.runPassGuarded(ctx)
			a.lastPass = time.Now()
		}
	}
}

// Stop кооперативно гасит цикл и ждёт, пока он отпустит транспорт.
func (a *Agent) Stop() {
	if a.cancel == nil {
		a.state.Store(int32(StateStopped))
		return
	}
	a.cancel()
	<-a.done
}

// runPassGuarded ловит паники уровня самого цикла (не отдельного символа):
// считаем ошибку и выдерживаем cooldown, чтобы не уйти в tight error loop.
func (a *Agent) runPassGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.stats.AddError()
			a.log.Error("analysis pass panicked", zap.Any("panic", r))
			select {
			case <-ctx.Done():
			case <-time.After(errorCooldown):
			}
		}
	}()

	res := a.RunPass(ctx)
	a.log.Info("analysis pass finished",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("signals", res.SignalsSent),
	)
}

// PassResult — итог одного прохода по всем символам.
type PassResult struct {
	Processed   int
	Failed      int
	SignalsSent int
}

// RunPass один раз проходит по отслеживаемым символам. Ошибка одного символа
// попадает в счётчики и лог, остальные символы обрабатываются дальше.
func (a *Agent) RunPass(ctx context.Context) PassResult {
	span := a.tracer.StartSpan("analysis_pass")
	defer span.Finish()

	var res PassResult
	for _, symbol := range a.symbols {
		// стоп-флаг проверяем и между символами
		if ctx.Err() != nil {
			break
		}
		sent, err := a.processSymbol(ctx, symbol)
		if err != nil {
			a.stats.AddError()
			res.Failed++
			a.log.Error("symbol processing failed",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		res.Processed++
		if sent {
			res.SignalsSent++
		}
	}

	span.SetTag("processed", res.Processed)
	span.SetTag("failed", res.Failed)
	return res
}

func (a *Agent) processSymbol(ctx context.Context, symbol string) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic while processing %s: %v", symbol, r)
		}
	}()

	md, err := a.tr.GetMarketData(symbol)
	if err != nil {
		return false, err
	}

	decision, err := a.eng.Analyze(ctx, symbol, md)
	if err != nil {
		return false, err
	}

	if decision.Direction.Actionable() {
		if derr := a.dispatch(symbol, decision); derr != nil {
			// считается в failed_trades внутри dispatch; проход не роняем
			a.log.Error("signal dispatch failed",
				zap.String("symbol", symbol),
				zap.Error(derr),
				zap.String("last_error", a.tr.LastError()),
			)
		} else {
			sent = !a.cfg.Agent.DryRun
		}
	} else {
		a.log.Debug("no trade signal",
			zap.String("symbol", symbol),
			zap.String("direction", string(decision.Direction)),
		)
	}

	a.record(ctx, symbol, md, decision)
	return sent, nil
}

// dispatch превращает решение в сигнал и доставляет его с подтверждением.
// В dry-run сигнал только логируется, транспорт не трогаем.
func (a *Agent) dispatch(symbol string, d models.Decision) error {
	action := models.ActionBuy
	if d.Direction == models.DirectionSell {
		action = models.ActionSell
	}

	sig := models.Signal{
		Action:     action,
		Symbol:     symbol,
		EntryPrice: d.Entry,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		Timestamp:  time.Now(),
	}

	if a.cfg.Agent.DryRun {
		a.log.Info("[dry-run] signal suppressed",
			zap.String("action", string(sig.Action)),
			zap.String("symbol", sig.Symbol),
			zap.Float64("entry", sig.EntryPrice),
			zap.Float64("sl", sig.StopLoss),
			zap.Float64("tp", sig.TakeProfit),
		)
		return nil
	}

	if err := a.tr.SendSignal(sig); err != nil {
		a.stats.AddFailedTrade()
		return err
	}

	a.stats.AddSignalSent(time.Now())
	a.n.Sendf("✅ %s %s @ %.5f | SL=%.5f TP=%.5f",
		sig.Action, sig.Symbol, sig.EntryPrice, sig.StopLoss, sig.TakeProfit)
	return nil
}

// record пишет проход в историю; ошибки хранилища только логируем.
func (a *Agent) record(ctx context.Context, symbol string, md *models.MarketData, d models.Decision) {
	rec := models.AnalysisRecord{
		Timestamp:  time.Now(),
		Symbol:     symbol,
		MarketData: md,
		Decision:   d,
	}
	if err := a.hist.Record(ctx, rec); err != nil {
		a.log.Warn("failed to store analysis record",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
}
