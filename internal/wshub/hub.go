// Package wshub fans tracker events out to dashboard WebSocket clients.
// Every client gets a bounded send queue; a full queue drops the frame and a
// write that stalls past the deadline drops the client, so one slow consumer
// never blocks the rest.
package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
)

const (
	sendQueueSize = 64
	writeTimeout  = time.Second
	pingInterval  = 30 * time.Second
)

// Frame is the JSON shape of every server-push message.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Hub tracks connected dashboard clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	snapshot func() interface{}
}

// NewHub creates a hub. snapshotFn produces the payload of the snapshot
// frame sent to every client on connect.
func NewHub(snapshotFn func() interface{}) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		snapshot: snapshotFn,
	}
}

// ServeHTTP upgrades the connection and serves it until either side goes
// away. Client frames are read and discarded; the protocol is push-only.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("remote", r.RemoteAddr).Int("clients", total).Msg("WebSocket client connected")

	h.enqueue(c, Frame{Type: "init", Data: map[string]interface{}{"connectedAt": time.Now()}})
	if h.snapshot != nil {
		h.enqueue(c, Frame{Type: "snapshot", Data: h.snapshot()})
	}

	go h.writePump(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket connection closed unexpectedly")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer h.drop(c)

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed, dropping client")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if present {
		log.Info().Msg("WebSocket client disconnected")
	}
}

func (h *Hub) enqueue(c *client, f Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("type", f.Type).Msg("Failed to marshal WebSocket frame")
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Warn().Str("type", f.Type).Msg("Client send queue full, dropping frame")
	}
}

// Broadcast queues a frame for every connected client. Best-effort: clients
// with a full queue miss the frame.
func (h *Hub) Broadcast(frameType string, data interface{}) {
	msg, err := json.Marshal(Frame{Type: frameType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", frameType).Msg("Failed to marshal WebSocket frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("type", frameType).Msg("Client send queue full, dropping frame")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Forward subscribes to the event manager and relays every published event
// as a WebSocket frame until the context ends.
func (h *Hub) Forward(ctx context.Context, em *event_manager.EventManager) {
	sub := em.Subscribe(nil, 256)
	defer em.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Channel:
			if !ok {
				return
			}
			h.Broadcast(string(e.Type), e.Data)
		}
	}
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
