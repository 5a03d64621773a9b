package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"html2pdf/pkg/pool"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statsHub broadcasts pool.Stats snapshots to every connected websocket
// client, once per tick. Clients that fall behind are dropped rather than
// blocking the broadcaster.
type statsHub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]chan []byte
}

func newStatsHub() *statsHub {
	return &statsHub{conns: make(map[*websocket.Conn]chan []byte)}
}

func (h *statsHub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *statsHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *statsHub) broadcast(stats pool.Stats) {
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, ch := range h.conns {
		select {
		case ch <- payload:
		default:
			// Slow consumer; drop it rather than block the broadcast.
			go h.unregister(conn)
		}
	}
}

// run pushes a stats() snapshot on every tick until ctx is done.
func (h *statsHub) run(ctx context.Context, interval time.Duration, stats func() pool.Stats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.broadcast(stats())
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleWSPool(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.hub.register(conn)
	defer s.hub.unregister(conn)

	// Send an immediate snapshot so the client isn't left waiting for the
	// next broadcast tick.
	if payload, err := json.Marshal(s.pool.Stats()); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}

	// Drain and discard client messages so ping/pong and close frames are
	// still processed; this connection is publish-only.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				s.hub.unregister(conn)
				return
			}
		}
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
