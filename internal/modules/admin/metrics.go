package admin

import (
	"github.com/prometheus/client_golang/prometheus"

	agentsvc "trade_agent/internal/modules/agent/service"
)

// RegisterMetrics отражает счётчики агента в prometheus. GaugeFunc читает
// снапшот на скрейпе — цикл агента метриками не занимается.
func RegisterMetrics(a *agentsvc.Agent) {
	gauge := func(name, help string, get func() int64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(get()) },
		)
	}

	prometheus.MustRegister(
		gauge("agent_signals_sent_total", "Trade signals confirmed by the endpoint",
			func() int64 { return a.Stats().SignalsSent }),
		gauge("agent_failed_trades_total", "Trade signals the endpoint rejected or that timed out",
			func() int64 { return a.Stats().FailedTrades }),
		gauge("agent_errors_total", "Per-symbol and pass-level processing errors",
			func() int64 { return a.Stats().Errors }),
		gauge("agent_uptime_seconds", "Seconds since the agent connected",
			func() int64 { return a.Stats().UptimeSeconds }),
	)
}
