// Package hub is the fan-out layer: it tracks which live connection has
// joined which endpoint room and pushes newly admitted requests to them.
// Delivery is at-least-once; the same payload also goes out on a global
// fallback event, and subscribers de-duplicate by request id.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/hookbin/hookbin/internal/logger"
)

// Event is the envelope pushed to subscribers.
type Event struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// sendBuffer bounds the per-member outbound queue. A member that cannot
// drain fast enough loses events rather than stalling the publisher.
const sendBuffer = 32

// Hub owns all room membership state. Join, leave and disconnect are its
// only mutators; its lifetime is the process lifetime.
type Hub struct {
	log *logger.Logger

	mu          sync.RWMutex
	members     map[string]chan []byte
	rooms       map[string]map[string]bool // room -> member ids
	memberRooms map[string]map[string]bool // member id -> rooms
}

func New(log *logger.Logger) *Hub {
	return &Hub{
		log:         log,
		members:     make(map[string]chan []byte),
		rooms:       make(map[string]map[string]bool),
		memberRooms: make(map[string]map[string]bool),
	}
}

// Publish pushes an event to every member currently joined to the room.
// In-room delivery order matches call order; publishes never block.
func (h *Hub) Publish(room, event string, data any) {
	payload, err := json.Marshal(Event{Event: event, Room: room, Data: data})
	if err != nil {
		h.log.Error("hub: marshal event", "event", event, "error", err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.rooms[room] {
		h.deliver(id, payload)
	}
}

// PublishGlobal pushes an event to every connected member regardless of
// room membership. Used as the fallback channel for subscribers that have
// not finished joining.
func (h *Hub) PublishGlobal(event string, data any) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.log.Error("hub: marshal event", "event", event, "error", err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.members {
		h.deliver(id, payload)
	}
}

func (h *Hub) memberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// RoomSize reports how many members are joined to a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Subscribe registers a channel-backed member joined to a single room.
// Used by the SSE stream; websocket members join through their own
// control messages instead.
func (h *Hub) Subscribe(room string) *Subscription {
	id := uuid.New().String()
	ch := h.add(id)
	h.join(id, room)
	return &Subscription{C: ch, id: id, hub: h}
}

// Subscription is a room membership held by a non-websocket consumer.
type Subscription struct {
	C   <-chan []byte
	id  string
	hub *Hub
}

// Close drops the membership. The events channel is closed afterwards.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
}

// deliver requires h.mu held (read or write).
func (h *Hub) deliver(id string, payload []byte) {
	ch, ok := h.members[id]
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
		h.log.Debug("hub: dropping event for slow member", "member", id)
	}
}

func (h *Hub) add(id string) chan []byte {
	ch := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.members[id] = ch
	h.mu.Unlock()
	return ch
}

// remove drops a member and all its room memberships, then closes its
// channel. Membership does not survive reconnects.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.members[id]
	if !ok {
		return
	}
	delete(h.members, id)

	for room := range h.memberRooms[id] {
		delete(h.rooms[room], id)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.memberRooms, id)

	close(ch)
}

func (h *Hub) join(id, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[id]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][id] = true
	if h.memberRooms[id] == nil {
		h.memberRooms[id] = make(map[string]bool)
	}
	h.memberRooms[id][room] = true
}

func (h *Hub) leave(id, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms[room], id)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	delete(h.memberRooms[id], room)
}
