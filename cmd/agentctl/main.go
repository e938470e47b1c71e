// agentctl — операционная утилита: статистика работающего агента и ручная
// отправка сообщений в командный канал EA (ping, тестовый сигнал).
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	transportsvc "trade_agent/internal/modules/transport/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := loadConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "stats":
		err = cmdStats()
	case "ping":
		err = cmdPing()
	case "signal":
		err = cmdSignal(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  agentctl stats                       -- print /stats of the running agent
  agentctl ping                        -- ping the EA command channel
  agentctl signal [flags]              -- send a one-off trade signal
      -action BUY|SELL|CLOSE -symbol EURUSD -entry 0 -sl 0 -tp 0`)
}

func loadConfig() error {
	viper.SetConfigName("values_local")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")

	viper.SetDefault("endpoint.host", "localhost")
	viper.SetDefault("endpoint.command_port", 5555)
	viper.SetDefault("admin.addr", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		// без файла работаем на дефолтах
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func cmdStats() error {
	addr := viper.GetString("admin.addr")
	if addr[0] == ':' {
		addr = "localhost" + addr
	}

	resp, err := http.Get("http://" + addr + "/stats")
	if err != nil {
		return errors.Wrap(err, "query agent stats")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func cmdPing() error {
	started := time.Now()
	reply, err := roundTrip(transportsvc.NewPing())
	if err != nil {
		return err
	}
	if err := transportsvc.DecodePong(reply); err != nil {
		return err
	}
	fmt.Printf("pong in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}

func cmdSignal(args []string) error {
	fs := flag.NewFlagSet("signal", flag.ExitOnError)
	action := fs.String("action", "BUY", "BUY, SELL or CLOSE")
	symbol := fs.String("symbol", "EURUSD", "instrument")
	entry := fs.Float64("entry", 0, "entry price, 0 = market")
	sl := fs.Float64("sl", 0, "stop loss, 0 = none")
	tp := fs.Float64("tp", 0, "take profit, 0 = none")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg := transportsvc.SignalMessage{
		Type:       transportsvc.KindTradeSignal,
		Action:     *action,
		Symbol:     *symbol,
		EntryPrice: *entry,
		StopLoss:   *sl,
		TakeProfit: *tp,
		Timestamp:  time.Now().Format(time.RFC3339),
	}

	reply, err := roundTrip(msg)
	if err != nil {
		return err
	}
	ack, err := transportsvc.DecodeAck(reply)
	if err != nil {
		return err
	}
	if ack.Status != transportsvc.StatusSuccess {
		return errors.Errorf("endpoint rejected signal: %s", ack.Error)
	}
	fmt.Printf("signal confirmed: %s %s\n", *action, *symbol)
	return nil
}

func roundTrip(req any) ([]byte, error) {
	u := url.URL{
		Scheme: "ws",
		Host: net.JoinHostPort(
			viper.GetString("endpoint.host"),
			strconv.Itoa(viper.GetInt("endpoint.command_port")),
		),
		Path: "/",
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial command channel")
	}
	defer conn.Close()

	payload, err := sonic.Marshal(req)
	if err != nil {
		return nil, err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, errors.Wrap(err, "send request")
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "await reply")
	}
	return reply, nil
}
