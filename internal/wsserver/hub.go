// Package wsserver implements the WebSocket side of spec §6: clients
// receive the EventBus vocabulary as JSON text frames, and a
// {"type":"ping"} frame is answered with {"type":"pong"}.
package wsserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codeframe-dev/codeframe/internal/events"
)

// sendBufferSize bounds how many pending broadcasts queue per client
// before the client is dropped, matching the teacher's fixed 256-slot
// hub.go buffer.
const sendBufferSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the wire shape of every WebSocket frame, in either
// direction ("ping"/"pong" client<->server, or an events.Type name
// server->client with its Payload).
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Client is one connected dashboard WebSocket.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	projectID int64
}

// Hub tracks connected clients and fans EventBus events out to them,
// scoped by project (spec §4.12's broadcast-vs-project-scoped delivery
// applies identically to WebSocket subscribers).
type Hub struct {
	bus *events.Bus

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub builds a Hub backed by bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:     bus,
		clients: make(map[*Client]bool),
	}
}

// ClientCount reports how many WebSocket clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket connection and starts
// the client's read/write pumps and its event subscription. projectID 0
// subscribes to every project's events (the all-projects dashboard view).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, projectID int64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		projectID: projectID,
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
	go client.subscribeLoop()

	return nil
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// subscribeLoop forwards every bus event matching the client's project
// scope onto its send channel until the client disconnects.
func (c *Client) subscribeLoop() {
	ch := c.hub.bus.Subscribe(c.projectID, nil)
	defer c.hub.bus.Unsubscribe(c.projectID, ch)

	for ev := range ch {
		data, err := json.Marshal(Message{Type: string(ev.Type), Payload: ev})
		if err != nil {
			log.Printf("[WSSERVER] failed to marshal event %s: %v", ev.ID, err)
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow client: drop it rather than block the bus's delivery
			// goroutine (spec §4.12 "at-least-once... no durable replay").
			c.hub.remove(c)
			return
		}
	}
}

// readPump reads client frames, answering {"type":"ping"} with
// {"type":"pong"} (spec §6) and discarding anything else.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(Message{Type: "pong"})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
