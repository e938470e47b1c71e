package service

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
)

// Client — клиент двухканальной связи с Expert Advisor.
//
// Командный канал: один запрос — один ответ, всё под дедлайнами.
// Broadcast-канал: fire-and-forget копия сигналов для пассивных слушателей,
// её судьба на результат операций не влияет.
//
// Клиент сам не ретраит: каждая операция — одна попытка, политика повторов
// живёт уровнем выше. Каждая неудача перезаписывает LastError.
//
// Известная дыра протокола: сигнал мог уйти в broadcast, а командный канал
// упасть — SendSignal вернёт ошибку, но слушатели копию уже видели. Replay
// не предусмотрен.
type Client struct {
	cfg *config.Config
	log *zap.Logger

	dialer *websocket.Dialer
	cmd    *websocket.Conn
	hub    *broadcastHub

	connected bool
	lastError string
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{
		cfg: cfg,
		log: log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.RecvTimeout(),
		},
	}
}

// Connect поднимает оба канала и делает ping/pong handshake. Любая неудача
// сворачивает всё обратно — полуоткрытых состояний не бывает. Повторный
// вызов на живом соединении сразу отвечает успехом.
func (c *Client) Connect() error {
	if c.connected {
		return nil
	}

	hub := newBroadcastHub(c.log)
	if err := hub.start(":" + strconv.Itoa(c.cfg.Endpoint.BroadcastPort)); err != nil {
		return c.fail(errors.Wrap(err, "bind broadcast channel"))
	}

	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.cfg.Endpoint.Host, strconv.Itoa(c.cfg.Endpoint.CommandPort)),
		Path:   "/",
	}
	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		hub.stop()
		return c.fail(errors.Wrap(err, "dial command channel"))
	}

	c.cmd = conn
	c.hub = hub

	if err := c.ping(); err != nil {
		c.teardown()
		return c.fail(errors.Wrap(err, "handshake"))
	}

	c.connected = true
	c.log.Info("connected to endpoint",
		zap.String("command", u.Host),
		zap.String("broadcast", hub.addr()),
	)
	return nil
}

func (c *Client) ping() error {
	reply, err := c.roundTrip(NewPing())
	if err != nil {
		return err
	}
	return DecodePong(reply)
}

// Disconnect сворачивает оба канала. Безопасен при повторных вызовах.
func (c *Client) Disconnect() {
	c.teardown()
	if c.connected {
		c.log.Info("disconnected from endpoint")
	}
	c.connected = false
}

func (c *Client) teardown() {
	if c.cmd != nil {
		_ = c.cmd.Close()
		c.cmd = nil
	}
	if c.hub != nil {
		c.hub.stop()
		c.hub = nil
	}
}

func (c *Client) IsConnected() bool {
	return c.connected
}

// LastError — человекочитаемое описание последней неудачи. Не очищается,
// только перезаписывается следующей.
func (c *Client) LastError() string {
	return c.lastError
}

// BroadcastAddr — фактический адрес broadcast-канала (порт 0 в тестах).
func (c *Client) BroadcastAddr() string {
	if c.hub == nil {
		return ""
	}
	return c.hub.addr()
}

// SendSignal доставляет торговый сигнал: сперва копия в broadcast (без
// подтверждения), затем тот же payload командным каналом. Успех — только
// ack со status:"success"; частичных успехов нет.
func (c *Client) SendSignal(sig models.Signal) error {
	if !c.connected {
		return c.fail(ErrNotConnected)
	}
	if !sig.Action.Valid() {
		return c.fail(&ValidationError{
			Reason: "unknown action " + strconv.Quote(string(sig.Action)) + ", allowed: BUY, SELL, CLOSE",
		})
	}
	if sig.Symbol == "" {
		return c.fail(&ValidationError{Reason: "empty symbol"})
	}

	msg := NewSignalMessage(sig)
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return c.fail(errors.Wrap(err, "encode signal"))
	}

	c.hub.publish(payload)

	reply, err := c.roundTripRaw(payload)
	if err != nil {
		return c.fail(errors.Wrap(err, "confirm signal"))
	}

	ack, err := DecodeAck(reply)
	if err != nil {
		return c.fail(err)
	}
	if ack.Status != StatusSuccess {
		reason := ack.Error
		if reason == "" {
			reason = "unknown error"
		}
		return c.fail(errors.Errorf("signal rejected by endpoint: %s", reason))
	}

	c.log.Info("trade signal confirmed",
		zap.String("action", string(sig.Action)),
		zap.String("symbol", sig.Symbol),
	)
	return nil
}

// GetStatus — снимок состояния EA (символы, котировки, баланс).
func (c *Client) GetStatus() (*models.StatusSnapshot, error) {
	if !c.connected {
		return nil, c.fail(ErrNotConnected)
	}

	reply, err := c.roundTrip(NewStatusRequest())
	if err != nil {
		return nil, c.fail(errors.Wrap(err, "get status"))
	}

	snap, err := DecodeStatus(reply)
	if err != nil {
		return nil, c.fail(err)
	}
	return snap, nil
}

// GetMarketData — свечка+индикаторы по символу, с проверкой эха символа.
func (c *Client) GetMarketData(symbol string) (*models.MarketData, error) {
	if !c.connected {
		return nil, c.fail(ErrNotConnected)
	}

	reply, err := c.roundTrip(NewMarketDataRequest(symbol))
	if err != nil {
		return nil, c.fail(errors.Wrapf(err, "get market data for %s", symbol))
	}

	md, err := DecodeMarketData(reply, symbol)
	if err != nil {
		return nil, c.fail(err)
	}
	return md, nil
}

func (c *Client) roundTrip(req any) ([]byte, error) {
	payload, err := sonic.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	return c.roundTripRaw(payload)
}

func (c *Client) roundTripRaw(payload []byte) ([]byte, error) {
	_ = c.cmd.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout()))
	if err := c.cmd.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, netErr(err, "send request")
	}

	_ = c.cmd.SetReadDeadline(time.Now().Add(c.cfg.RecvTimeout()))
	_, reply, err := c.cmd.ReadMessage()
	if err != nil {
		return nil, netErr(err, "await reply")
	}
	return reply, nil
}

func netErr(err error, op string) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &TimeoutError{Op: op}
	}
	return errors.Wrap(err, op)
}

func (c *Client) fail(err error) error {
	c.lastError = err.Error()
	c.log.Error("transport operation failed", zap.Error(err))
	return err
}
