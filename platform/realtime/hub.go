// Package realtime pushes comment notifications to subscribers of a
// template's room over websockets. Delivery is best effort and is never
// required for correctness of the platform core.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Broadcaster is the narrow interface the services layer depends on.
type Broadcaster interface {
	Publish(templateId uuid.UUID, payload interface{})
}

type Hub struct {
	// Subscribers keyed by the template room they joined.
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	messages   chan roomMessage

	mu sync.RWMutex
}

type roomMessage struct {
	room uuid.UUID
	data []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		messages:   make(chan roomMessage, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.room]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.room)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.messages:
			h.mu.Lock()
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.data:
				default:
					close(client.send)
					delete(h.rooms[msg.room], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish serializes the payload and fans it out to every subscriber of the
// template's room. Messages are dropped, not queued, if the hub is saturated.
func (h *Hub) Publish(templateId uuid.UUID, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("error serializing realtime payload", "template_id", templateId, "error", err)
		return
	}

	select {
	case h.messages <- roomMessage{room: templateId, data: data}:
	default:
		slog.Error("realtime hub is saturated, dropping message", "template_id", templateId)
	}
}
