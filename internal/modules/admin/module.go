package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	agentsvc "trade_agent/internal/modules/agent/service"
	"trade_agent/internal/modules/config"
)

func NewMux(a *agentsvc.Agent) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: цикл крутится
		if a.State() != agentsvc.StateRunning {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := a.Stats()
		resp := map[string]any{
			"state":             a.State().String(),
			"symbols":           a.Symbols(),
			"signals_sent":      stats.SignalsSent,
			"successful_trades": stats.SuccessfulTrades,
			"failed_trades":     stats.FailedTrades,
			"errors":            stats.Errors,
			"uptime_seconds":    stats.UptimeSeconds,
			"last_signal_unix": func() int64 {
				if stats.LastSignalTime.IsZero() {
					return 0
				}
				return stats.LastSignalTime.Unix()
			}(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Admin.Addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("admin",
		fx.Provide(
			NewMux,
		),
		fx.Invoke(
			RegisterMetrics,
			RunHTTP,
		),
	)
}
