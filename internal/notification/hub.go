package notification

import (
	"sync"

	"github.com/gorilla/websocket"
)

// conn wraps a websocket connection; gorilla allows only one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *conn) writeControl(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

// Hub keeps live subscribers per donation. A donation may be watched from
// several tabs at once.
type Hub struct {
	mutex       sync.RWMutex
	connections map[int64]map[*conn]struct{}
}

func NewHub() *Hub {
	return &Hub{connections: make(map[int64]map[*conn]struct{})}
}

func (h *Hub) register(donationID int64, ws *websocket.Conn) *conn {
	c := &conn{ws: ws}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	set, ok := h.connections[donationID]
	if !ok {
		set = make(map[*conn]struct{})
		h.connections[donationID] = set
	}
	set[c] = struct{}{}
	return c
}

func (h *Hub) unregister(donationID int64, c *conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	set, ok := h.connections[donationID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		_ = c.ws.Close()
		delete(set, c)
	}
	if len(set) == 0 {
		delete(h.connections, donationID)
	}
}

// Broadcast sends message to every subscriber of the donation and returns how
// many received it. Broken connections are dropped.
func (h *Hub) Broadcast(donationID int64, message interface{}) int {
	h.mutex.RLock()
	targets := make([]*conn, 0, len(h.connections[donationID]))
	for c := range h.connections[donationID] {
		targets = append(targets, c)
	}
	h.mutex.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.writeJSON(message); err != nil {
			h.unregister(donationID, c)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Subscribers(donationID int64) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections[donationID])
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id, set := range h.connections {
		for c := range set {
			_ = c.ws.Close()
		}
		delete(h.connections, id)
	}
}
