// easim — локальный симулятор Expert Advisor: отвечает на командном канале
// (ping/get_status/get_market_data/trade_signal) и подписывается на
// broadcast-канал агента. Для разработки без терминала MT5.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	transportsvc "trade_agent/internal/modules/transport/service"
	"trade_agent/pkg/logger"
)

var (
	listenAddr    = flag.String("listen", ":5555", "command channel listen address")
	broadcastURL  = flag.String("broadcast", "ws://localhost:5556/", "agent broadcast channel to subscribe to (empty to skip)")
	symbolsFlag   = flag.String("symbols", "EURUSD,GBPUSD,USDJPY", "comma-separated symbol list reported in status")
	startBalance  = flag.Float64("balance", 10000, "reported account balance")
	rejectSignals = flag.Bool("reject", false, "reject every trade signal (failure-path testing)")
)

type simulator struct {
	log     *zap.Logger
	symbols []string
	balance float64
	reject  bool

	mu     sync.Mutex
	prices map[string]float64
}

func main() {
	flag.Parse()

	l, err := logger.New("easim")
	if err != nil {
		log.Fatal(err)
	}

	sim := &simulator{
		log:     l,
		symbols: strings.Split(*symbolsFlag, ","),
		balance: *startBalance,
		reject:  *rejectSignals,
		prices:  map[string]float64{},
	}

	if *broadcastURL != "" {
		go sim.subscribeBroadcast(*broadcastURL)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", sim.handleCommand)

	l.Info("command channel listening", zap.String("addr", *listenAddr))
	log.Fatal(http.ListenAndServe(*listenAddr, mux))
}

func (s *simulator) handleCommand(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.log.Info("agent connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		_, req, err := conn.ReadMessage()
		if err != nil {
			s.log.Info("agent disconnected", zap.Error(err))
			return
		}

		reply := s.dispatch(req)
		payload, err := sonic.Marshal(reply)
		if err != nil {
			s.log.Error("encode reply", zap.Error(err))
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (s *simulator) dispatch(req []byte) any {
	kind, err := transportsvc.PeekType(req)
	if err != nil {
		return transportsvc.AckMessage{Status: transportsvc.StatusError, Error: err.Error()}
	}

	switch kind {
	case transportsvc.KindPing:
		return transportsvc.NewPong()

	case transportsvc.KindGetStatus:
		bid := s.price(s.symbols[0])
		return transportsvc.StatusMessage{
			Type:    transportsvc.KindStatus,
			Symbols: s.symbols,
			Bid:     bid,
			Ask:     bid + 0.0002,
			Balance: s.balance,
			Equity:  s.balance,
		}

	case transportsvc.KindGetMarketData:
		var mdReq transportsvc.MarketDataRequest
		if err := sonic.Unmarshal(req, &mdReq); err != nil {
			return transportsvc.AckMessage{Status: transportsvc.StatusError, Error: "malformed get_market_data"}
		}
		return s.candle(mdReq.Symbol)

	case transportsvc.KindTradeSignal:
		var sig transportsvc.SignalMessage
		if err := sonic.Unmarshal(req, &sig); err != nil {
			return transportsvc.AckMessage{Status: transportsvc.StatusError, Error: "malformed trade_signal"}
		}
		if s.reject {
			return transportsvc.AckMessage{Status: transportsvc.StatusError, Error: "rejected by simulator"}
		}
		s.log.Info("trade signal accepted",
			zap.String("action", sig.Action),
			zap.String("symbol", sig.Symbol),
			zap.Float64("entry", sig.EntryPrice),
		)
		return transportsvc.AckMessage{Status: transportsvc.StatusSuccess}

	default:
		return transportsvc.AckMessage{
			Status: transportsvc.StatusError,
			Error:  "unknown message type: " + kind,
		}
	}
}

// candle — синтетическая свечка случайного блуждания вокруг прошлой цены.
func (s *simulator) candle(symbol string) transportsvc.MarketDataMessage {
	open := s.price(symbol)
	close := open * (1 + (rand.Float64()-0.5)*0.002)
	high := open
	low := open
	if close > high {
		high = close
	}
	if close < low {
		low = close
	}

	s.mu.Lock()
	s.prices[symbol] = close
	s.mu.Unlock()

	return transportsvc.MarketDataMessage{
		Type:   transportsvc.KindMarketData,
		Symbol: symbol,
		Open:   open,
		High:   high * 1.0003,
		Low:    low * 0.9997,
		Close:  close,
		Volume: float64(rand.Intn(1000) + 100),
	}
}

func (s *simulator) price(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok {
		p = 1.0 + rand.Float64()
		s.prices[symbol] = p
	}
	return p
}

// subscribeBroadcast слушает PUB-канал агента и логирует всё, что приходит.
// Агент может подниматься позже симулятора, поэтому реконнектимся вечно.
func (s *simulator) subscribeBroadcast(url string) {
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}
		s.log.Info("subscribed to broadcast channel", zap.String("url", url))

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				_ = conn.Close()
				break
			}
			s.log.Info("broadcast message", zap.ByteString("payload", msg))
		}
	}
}
