package service

import (
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	"trade_agent/pkg/logger"
)

// fakeEndpoint — скриптуемая сторона EA для командного канала.
// handler == nil на запрос означает "молчим" (проверка таймаутов).
type fakeEndpoint struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	requests [][]byte
	handler  func(req []byte) any
}

func startFakeEndpoint(t *testing.T, handler func(req []byte) any) *fakeEndpoint {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeEndpoint{t: t, ln: ln, handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("/", f.serve)
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return f
}

func (f *fakeEndpoint) serve(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, req, err := conn.ReadMessage()
		if err != nil {
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		handler := f.handler
		f.mu.Unlock()

		reply := handler(req)
		if reply == nil {
			continue
		}
		payload, err := sonic.Marshal(reply)
		if err != nil {
			f.t.Errorf("encode reply: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (f *fakeEndpoint) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeEndpoint) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// scriptedEA — протокольно корректный ответчик.
func scriptedEA(rejectSignals bool) func(req []byte) any {
	return func(req []byte) any {
		kind, err := PeekType(req)
		if err != nil {
			return AckMessage{Status: StatusError, Error: err.Error()}
		}
		switch kind {
		case KindPing:
			return NewPong()
		case KindGetStatus:
			return StatusMessage{
				Type:    KindStatus,
				Symbols: []string{"EURUSD", "GBPUSD"},
				Bid:     1.105,
				Ask:     1.1052,
				Balance: 10000,
				Equity:  9950,
			}
		case KindGetMarketData:
			var mdReq MarketDataRequest
			_ = sonic.Unmarshal(req, &mdReq)
			return MarketDataMessage{
				Type:   KindMarketData,
				Symbol: mdReq.Symbol,
				Open:   1.10, High: 1.12, Low: 1.09, Close: 1.11,
				Volume: 500,
			}
		case KindTradeSignal:
			if rejectSignals {
				return AckMessage{Status: StatusError, Error: "market closed"}
			}
			return AckMessage{Status: StatusSuccess}
		}
		return AckMessage{Status: StatusError, Error: "unknown type"}
	}
}

func newTestClient(t *testing.T, f *fakeEndpoint) *Client {
	t.Helper()

	cfg := config.Default()
	cfg.Endpoint.Host = "127.0.0.1"
	cfg.Endpoint.CommandPort = f.port()
	cfg.Endpoint.BroadcastPort = 0 // эфемерный, чтобы тесты не дрались за порт
	cfg.Endpoint.SendTimeoutMs = 500
	cfg.Endpoint.RecvTimeoutMs = 500

	c := NewClient(cfg, logger.NewNop())
	t.Cleanup(c.Disconnect)
	return c
}

func testSignal() models.Signal {
	return models.Signal{
		Action:     models.ActionBuy,
		Symbol:     "EURUSD",
		EntryPrice: 1.1050,
		StopLoss:   1.1000,
		TakeProfit: 1.1150,
		Timestamp:  time.Now(),
	}
}

func TestConnectHandshake(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)

	require.NoError(t, c.Connect())
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, f.requestCount()) // только ping

	// повторный connect — сразу успех, без второго handshake
	require.NoError(t, c.Connect())
	assert.Equal(t, 1, f.requestCount())
}

func TestConnectFailsWithoutPong(t *testing.T) {
	f := startFakeEndpoint(t, func(req []byte) any {
		return StatusMessage{Type: KindStatus} // не pong
	})
	c := newTestClient(t, f)

	err := c.Connect()

	require.Error(t, err)
	assert.False(t, c.IsConnected())
	assert.NotEmpty(t, c.LastError())
}

func TestConnectHandshakeTimeoutLeavesDisconnected(t *testing.T) {
	f := startFakeEndpoint(t, func(req []byte) any {
		return nil // молчим
	})
	c := newTestClient(t, f)

	err := c.Connect()

	require.Error(t, err)
	var terr *TimeoutError
	assert.ErrorAs(t, err, &terr)
	assert.False(t, c.IsConnected())

	// после таймаута можно пробовать снова — ресурсов не осталось
	f.mu.Lock()
	f.handler = scriptedEA(false)
	f.mu.Unlock()
	require.NoError(t, c.Connect())
	assert.True(t, c.IsConnected())
}

func TestSendSignalRequiresConnection(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)

	err := c.SendSignal(testSignal())

	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, f.requestCount())
}

func TestSendSignalValidatesActionBeforeIO(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	sig := testSignal()
	sig.Action = "HOLD"
	err := c.SendSignal(sig)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, f.requestCount()) // только handshake ping, сигнал не ушёл
}

func TestSendSignalConfirmed(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	require.NoError(t, c.SendSignal(testSignal()))
}

func TestSendSignalRejectedByEndpoint(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(true))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	err := c.SendSignal(testSignal())

	require.Error(t, err)
	assert.Contains(t, c.LastError(), "market closed")
}

func subscribeBroadcast(t *testing.T, c *Client) *websocket.Conn {
	t.Helper()

	_, port, err := net.SplitHostPort(c.BroadcastAddr())
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// даём хабу время зарегистрировать подписчика
	require.Eventually(t, func() bool {
		c.hub.mu.Lock()
		defer c.hub.mu.Unlock()
		return len(c.hub.subs) > 0
	}, time.Second, 10*time.Millisecond)

	return conn
}

func TestBroadcastDeliversSignalCopy(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	sub := subscribeBroadcast(t, c)

	require.NoError(t, c.SendSignal(testSignal()))

	_ = sub.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := sub.ReadMessage()
	require.NoError(t, err)

	var msg SignalMessage
	require.NoError(t, sonic.Unmarshal(payload, &msg))
	assert.Equal(t, KindTradeSignal, msg.Type)
	assert.Equal(t, "EURUSD", msg.Symbol)
}

func TestBroadcastFailureInvisibleToCaller(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	sub := subscribeBroadcast(t, c)
	_ = sub.Close() // подписчик умер, но командный канал жив

	require.NoError(t, c.SendSignal(testSignal()))
}

func TestGetStatus(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	snap, err := c.GetStatus()

	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, snap.Symbols)
	assert.Equal(t, 10000.0, snap.Balance)
}

func TestGetMarketData(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	md, err := c.GetMarketData("GBPUSD")

	require.NoError(t, err)
	assert.Equal(t, "GBPUSD", md.Symbol)
	assert.Equal(t, 1.11, md.Close)
}

func TestGetMarketDataWrongReplyType(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	// с этого момента EA отвечает статусом на любой запрос
	f.mu.Lock()
	f.handler = func(req []byte) any {
		return StatusMessage{Type: KindStatus, Symbols: []string{"EURUSD"}}
	}
	f.mu.Unlock()

	md, err := c.GetMarketData("EURUSD")

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Nil(t, md)
}

func TestDisconnectTwiceIsSafe(t *testing.T) {
	f := startFakeEndpoint(t, scriptedEA(false))
	c := newTestClient(t, f)
	require.NoError(t, c.Connect())

	c.Disconnect()
	assert.NotPanics(t, c.Disconnect)
	assert.False(t, c.IsConnected())

	err := c.SendSignal(testSignal())
	assert.True(t, errors.Is(err, ErrNotConnected))
}
