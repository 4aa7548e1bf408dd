package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback; local dashboards connect from any
		// origin.
		return true
	},
}

// FeedMessage wraps one routed envelope for the live feed.
type FeedMessage struct {
	Topic   string          `json:"topic"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maintains the set of active websocket clients and fans routed
// decisions out to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	metrics   *MetricsRegistry
	mu        sync.Mutex
	closed    bool
}

// NewHub builds an idle hub. Run must be started before clients receive
// anything. The metrics registry may be nil.
func NewHub(metrics *MetricsRegistry) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		metrics:   metrics,
	}
}

// Run drains the broadcast channel until Close. Slow clients are dropped
// after a five second write deadline rather than stalling the feed.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mu.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Msg("Dropping websocket client after write failure")
				client.Close()
				delete(h.clients, client)
				if h.metrics != nil {
					h.metrics.WSClientDisconnected()
				}
			}
		}
		h.mu.Unlock()
	}
}

// Close stops the broadcast loop. Connected clients are torn down by their
// read pumps.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.broadcast)
}

// Broadcast queues one frame for every connected client. It never blocks;
// frames beyond the backlog are dropped.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// FeedHandler returns a bus handler that forwards every envelope on the
// given topic to the feed, labeled with the topic it came from.
func (h *Hub) FeedHandler(topic string) stream.MessageHandler {
	return func(ctx context.Context, message *stream.Message) error {
		frame, err := json.Marshal(FeedMessage{
			Topic:   topic,
			Key:     message.Key,
			Payload: json.RawMessage(message.Payload),
		})
		if err != nil {
			return fmt.Errorf("encoding feed frame for %s: %w", topic, err)
		}
		h.Broadcast(frame)
		return nil
	}
}

// Subscribe upgrades the request and registers the client on the feed.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	// Clear the read deadline the server armed before the hijack.
	_ = conn.SetReadDeadline(time.Time{})

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClientConnected()
	}
	log.Info().Int("clients", total).Msg("Websocket client connected")

	go h.readPump(conn)
}

// readPump discards inbound frames. The feed is push-only, but reads are
// required to observe disconnects.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[conn]; ok {
			delete(h.clients, conn)
			if h.metrics != nil {
				h.metrics.WSClientDisconnected()
			}
		}
		total := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		log.Info().Int("clients", total).Msg("Websocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("Websocket read error")
			}
			return
		}
	}
}
