// Package relay fans realtime events out to WebSocket connections, either
// to everyone or to the members of a named room (one room per
// conversation id).
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"tradeacademy.io/support-desk/internal/logger"
)

// Everyone targets every connection regardless of room membership.
const Everyone = "*"

// Registry is the connection registry shared by the WebSocket endpoint and
// the REST layer.
type Registry interface {
	Join(room, connID string)
	Leave(room, connID string)
	// Broadcast sends event to every connection in target (a room name or
	// Everyone) except exceptConnID, which may be empty.
	Broadcast(target, event string, payload any, exceptConnID string) error
}

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]struct{}
	closed  bool
}

var _ Registry = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.ID] = c
	return true
}

// unregister drops c and all of its memberships. Safe to call repeatedly.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	for room := range c.rooms {
		h.removeMember(room, c.ID)
	}
	close(c.send)
}

func (h *Hub) removeMember(room, connID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Join(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connID] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		delete(c.rooms, room)
	}
	h.removeMember(room, connID)
}

func (h *Hub) Broadcast(target, event string, payload any, exceptConnID string) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	var slow []*Client
	h.mu.RLock()
	if target == Everyone {
		for id, c := range h.clients {
			if id != exceptConnID && !c.enqueue(frame) {
				slow = append(slow, c)
			}
		}
	} else {
		for id := range h.rooms[target] {
			if id == exceptConnID {
				continue
			}
			if c := h.clients[id]; c != nil && !c.enqueue(frame) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warn("Dropping slow relay connection", slog.String("conn_id", c.ID))
		h.unregister(c)
	}
	return nil
}

// RoomSize reports how many connections are joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		data = b
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", event, err)
	}
	return frame, nil
}
