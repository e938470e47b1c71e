package service

import (
	"time"

	"github.com/bytedance/sonic"

	"trade_agent/internal/models"
)

// Типы сообщений протокола. Каждое сообщение несёт "type" и timestamp,
// ответ на trade_signal — это ack без type (только status/error).
const (
	KindPing          = "ping"
	KindPong          = "pong"
	KindTradeSignal   = "trade_signal"
	KindGetStatus     = "get_status"
	KindStatus        = "status"
	KindGetMarketData = "get_market_data"
	KindMarketData    = "market_data"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type PingMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type SignalMessage struct {
	Type       string  `json:"type"`
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Timestamp  string  `json:"timestamp"`
}

type AckMessage struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type StatusRequest struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type StatusMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Bid     float64  `json:"bid"`
	Ask     float64  `json:"ask"`
	Balance float64  `json:"balance"`
	Equity  float64  `json:"equity"`
}

type MarketDataRequest struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"`
}

type MarketDataMessage struct {
	Type       string             `json:"type"`
	Symbol     string             `json:"symbol"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

func NewPing() PingMessage {
	return PingMessage{Type: KindPing, Timestamp: wireTime(time.Now())}
}

func NewPong() PingMessage {
	return PingMessage{Type: KindPong, Timestamp: wireTime(time.Now())}
}

func NewSignalMessage(sig models.Signal) SignalMessage {
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return SignalMessage{
		Type:       KindTradeSignal,
		Action:     string(sig.Action),
		Symbol:     sig.Symbol,
		EntryPrice: sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Timestamp:  wireTime(ts),
	}
}

func NewStatusRequest() StatusRequest {
	return StatusRequest{Type: KindGetStatus, Timestamp: wireTime(time.Now())}
}

func NewMarketDataRequest(symbol string) MarketDataRequest {
	return MarketDataRequest{Type: KindGetMarketData, Symbol: symbol, Timestamp: wireTime(time.Now())}
}

func wireTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// PeekType достаёт тег type, не разбирая остальное сообщение.
func PeekType(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return "", &ProtocolError{Reason: "malformed message: " + err.Error()}
	}
	return env.Type, nil
}

// DecodePong проверяет, что ответ на ping — корректный pong.
func DecodePong(data []byte) error {
	kind, err := PeekType(data)
	if err != nil {
		return err
	}
	if kind != KindPong {
		return &ProtocolError{Expected: KindPong, Got: kind}
	}
	return nil
}

// DecodeAck разбирает подтверждение trade_signal.
func DecodeAck(data []byte) (AckMessage, error) {
	var ack AckMessage
	if err := sonic.Unmarshal(data, &ack); err != nil {
		return AckMessage{}, &ProtocolError{Reason: "malformed ack: " + err.Error()}
	}
	if ack.Status == "" {
		return AckMessage{}, &ProtocolError{Reason: "ack without status"}
	}
	return ack, nil
}

// DecodeStatus разбирает status и складывает нестандартные поля EA в Extra.
func DecodeStatus(data []byte) (*models.StatusSnapshot, error) {
	kind, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	if kind != KindStatus {
		return nil, &ProtocolError{Expected: KindStatus, Got: kind}
	}

	var msg StatusMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, &ProtocolError{Reason: "malformed status: " + err.Error()}
	}

	extra := map[string]any{}
	if err := sonic.Unmarshal(data, &extra); err == nil {
		for _, known := range []string{"type", "symbols", "bid", "ask", "balance", "equity", "timestamp"} {
			delete(extra, known)
		}
	}

	return &models.StatusSnapshot{
		Symbols: msg.Symbols,
		Bid:     msg.Bid,
		Ask:     msg.Ask,
		Balance: msg.Balance,
		Equity:  msg.Equity,
		Extra:   extra,
	}, nil
}

// DecodeMarketData разбирает market_data и сверяет эхо символа с запросом.
func DecodeMarketData(data []byte, symbol string) (*models.MarketData, error) {
	kind, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	if kind != KindMarketData {
		return nil, &ProtocolError{Expected: KindMarketData, Got: kind}
	}

	var msg MarketDataMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, &ProtocolError{Reason: "malformed market_data: " + err.Error()}
	}
	if msg.Symbol != symbol {
		return nil, &ProtocolError{Reason: "market_data for " + msg.Symbol + ", requested " + symbol}
	}

	return &models.MarketData{
		Symbol:     msg.Symbol,
		Open:       msg.Open,
		High:       msg.High,
		Low:        msg.Low,
		Close:      msg.Close,
		Volume:     msg.Volume,
		Indicators: msg.Indicators,
	}, nil
}
