package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	// Endpoint — куда ходим за статусом/данными и куда шлём сигналы (EA).
	Endpoint struct {
		Host          string `yaml:"host"`
		CommandPort   int    `yaml:"command_port"`   // канал запрос/ответ
		BroadcastPort int    `yaml:"broadcast_port"` // broadcast, bind на нашей стороне
		SendTimeoutMs int    `yaml:"send_timeout_ms"`
		RecvTimeoutMs int    `yaml:"recv_timeout_ms"`
	} `yaml:"endpoint"`

	Agent struct {
		PollInterval time.Duration `yaml:"poll_interval"` // период полного прохода по символам
		DryRun       bool          `yaml:"dry_run"`       // анализируем и логируем, но не шлём
		Symbols      []string      `yaml:"symbols"`       // fallback, если EA не отдал список
	} `yaml:"agent"`

	// Параметры движка (EMA+RSI) и расчёта SL/TP от цены входа.
	Strategy struct {
		EMAShort      int     `yaml:"ema_short"`
		EMALong       int     `yaml:"ema_long"`
		RSIPeriod     int     `yaml:"rsi_period"`
		RSIOverbought float64 `yaml:"rsi_overbought"`
		RSIOversold   float64 `yaml:"rsi_oversold"`
		StopPct       float64 `yaml:"stop_pct"`       // дистанция до SL, % от цены
		TakeProfitRR  float64 `yaml:"take_profit_rr"` // TP = RR * дистанция до SL
	} `yaml:"strategy"`

	DB string `yaml:"db_dsn"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Admin struct {
		Addr string `yaml:"addr"` // например ":8080"
	} `yaml:"admin"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Default()

	err = decoder.Decode(config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	return config, nil
}

// Default — значения до чтения yaml: дефолты протокола + env-оверрайды.
func Default() *Config {
	config := &Config{}

	config.Endpoint.Host = getenvDefault("ENDPOINT_HOST", "localhost")
	config.Endpoint.CommandPort = intFromEnv("ENDPOINT_COMMAND_PORT", 5555)
	config.Endpoint.BroadcastPort = intFromEnv("ENDPOINT_BROADCAST_PORT", 5556)
	config.Endpoint.SendTimeoutMs = intFromEnv("ENDPOINT_SEND_TIMEOUT_MS", 5000)
	config.Endpoint.RecvTimeoutMs = intFromEnv("ENDPOINT_RECV_TIMEOUT_MS", 5000)

	config.Agent.PollInterval = durationFromEnv("POLL_INTERVAL", "60s")
	config.Agent.DryRun = boolFromEnv("DRY_RUN", false)
	config.Agent.Symbols = []string{"EURUSD"}

	config.Strategy.EMAShort = intFromEnv("EMA_SHORT", 9)
	config.Strategy.EMALong = intFromEnv("EMA_LONG", 21)
	config.Strategy.RSIPeriod = intFromEnv("RSI_PERIOD", 14)
	config.Strategy.RSIOverbought = floatFromEnv("RSI_OVERBOUGHT", 70)
	config.Strategy.RSIOversold = floatFromEnv("RSI_OVERSOLD", 30)
	config.Strategy.StopPct = floatFromEnv("STOP_PCT", 0.5)
	config.Strategy.TakeProfitRR = floatFromEnv("TAKE_PROFIT_RR", 3.0)

	config.Admin.Addr = getenvDefault("ADMIN_ADDR", ":8080")

	return config
}

// SendTimeout — таймаут на запись в командный канал.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Endpoint.SendTimeoutMs) * time.Millisecond
}

// RecvTimeout — таймаут ожидания ответа командного канала.
func (c *Config) RecvTimeout() time.Duration {
	return time.Duration(c.Endpoint.RecvTimeoutMs) * time.Millisecond
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
