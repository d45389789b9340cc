// FILE: internal/service/web/hub.go
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"telnet_testserver/internal/shared/logger"
	"telnet_testserver/internal/shared/types"
)

const (
	broadcastBuffer = 256
	writeWait       = 5 * time.Second
)

// WebSocketMessage 定义了 WebSocket 消息的通用格式
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active monitor clients and broadcasts session
// events and stats to them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
}

// Hub is the session event sink of the gateway.
var _ types.EventSink = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
		done:       make(chan struct{}),
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			// Only Run writes or closes client conns, so the writes can
			// happen outside the lock.
			for _, conn := range h.snapshot() {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
					// the read pump unregisters it
				}
			}
		}
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	return conns
}

// ClientCount returns the number of registered monitor clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishSessionEvent 广播单个会话事件. It never blocks the session.
func (h *Hub) PublishSessionEvent(ev *types.SessionEvent) {
	h.publish("session_event", ev)
}

// BroadcastStats 广播实时统计数据
func (h *Hub) BroadcastStats(snap *types.Snapshot) {
	h.publish("stats_update", snap)
}

func (h *Hub) publish(kind string, data interface{}) {
	jsonMsg, err := json.Marshal(WebSocketMessage{Type: kind, Data: data})
	if err != nil {
		logger.Error().Err(err).Str("type", kind).Msg("Hub: Failed to marshal message")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		// Do not log warning for full channel here to avoid log spam
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	select {
	case hub.register <- conn:
	case <-hub.done:
		conn.Close()
		return
	}

	// This is a read pump. It's needed to detect when a client closes the connection.
	go func() {
		defer func() {
			select {
			case hub.unregister <- conn:
			case <-hub.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
