package service

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// broadcastHub — наша сторона broadcast-канала: мы bind-имся на порту,
// слушатели (EA, дашборды) подключаются сами. Доставка best-effort,
// подтверждений нет, мёртвые подписчики молча выкидываются.
type broadcastHub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	srv *http.Server
	ln  net.Listener

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

func newBroadcastHub(log *zap.Logger) *broadcastHub {
	return &broadcastHub{
		log:      log,
		upgrader: websocket.Upgrader{},
		subs:     make(map[*websocket.Conn]struct{}),
	}
}

func (h *broadcastHub) start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleSubscribe)

	h.ln = ln
	h.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = h.srv.Serve(ln) }()

	h.log.Info("broadcast channel bound", zap.String("addr", ln.Addr().String()))
	return nil
}

func (h *broadcastHub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	if h.subs == nil {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subs[conn] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.log.Info("broadcast subscriber attached", zap.Int("subscribers", n))

	// Читаем только чтобы заметить закрытие с той стороны.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *broadcastHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.subs, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// publish рассылает payload всем подписчикам. Ошибки записи не всплывают —
// канал по контракту без гарантий доставки.
func (h *broadcastHub) publish(payload []byte) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for conn := range h.subs {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Warn("dropping broadcast subscriber", zap.Error(err))
			h.drop(conn)
		}
	}
}

// addr — фактический адрес (нужен при bind на порт 0 в тестах).
func (h *broadcastHub) addr() string {
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

func (h *broadcastHub) stop() {
	if h.srv != nil {
		_ = h.srv.Close()
	}

	h.mu.Lock()
	for conn := range h.subs {
		_ = conn.Close()
	}
	h.subs = nil
	h.mu.Unlock()
}
