package web

import (
	"log"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"cs2coach/internal/advisor"
	"cs2coach/internal/coach"
)

// Event is one message pushed to websocket subscribers.
type Event struct {
	Type      string            `json:"type"`
	Advisory  *advisor.Advisory `json:"advisory,omitempty"`
	Status    *coach.Status     `json:"status,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Hub fans events out to all connected websocket clients. Slow clients
// are dropped rather than allowed to block the feed.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

// NewHub creates an idle hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run processes hub events until the stop channel closes.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("[Web] Client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			log.Printf("[Web] Client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-stop:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// BroadcastAdvisory pushes one advisory to all subscribers.
func (h *Hub) BroadcastAdvisory(adv advisor.Advisory) {
	h.send(Event{Type: "advisory", Advisory: &adv, Timestamp: time.Now().UnixMilli()})
}

// BroadcastStatus pushes a status update to all subscribers.
func (h *Hub) BroadcastStatus(status coach.Status) {
	h.send(Event{Type: "status", Status: &status, Timestamp: time.Now().UnixMilli()})
}

func (h *Hub) send(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Web] Failed to encode event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Println("[Web] Broadcast queue full, dropping event")
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsClient is one websocket subscriber.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound frames; the feed is one-way. It exists to
// notice disconnects and answer pings.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
