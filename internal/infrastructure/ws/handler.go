// Package ws pushes reload events to WebSocket clients.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/sse"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/storage"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler streams events as JSON text frames, one event per frame.
type Handler struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[chan *events.Event]struct{}
}

// NewHandler creates a handler subscribed to the publisher.
func NewHandler(publisher *storage.InMemoryEventPublisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are local tools and editor panes.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[chan *events.Event]struct{}),
	}

	publisher.Subscribe(func(e *events.Event) error {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for ch := range h.clients {
			select {
			case ch <- e:
			default:
			}
		}
		return nil
	})
	return h
}

// Clients returns the number of connected sockets.
func (h *Handler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away. It accepts the same types and plugin filters as the SSE stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := sse.ParseFilter(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan *events.Event, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event := <-ch:
			if !filter.Allows(event) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and signals when the socket closes.
func (h *Handler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
