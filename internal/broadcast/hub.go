// Package broadcast fans live conversation events out to dashboard and
// web-chat subscribers.
//
// Delivery is best effort and at most once per publish. Subscribers that
// fall behind lose events; the store remains the source of truth and clients
// re-fetch state on reconnect.
package broadcast

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/pkg/metrics"
)

// MonitoringRoom is the shared dashboard channel.
const MonitoringRoom = "monitoring"

const conversationRoomPrefix = "conversation:"

// ConversationRoom returns the live channel for one conversation.
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

func roomScope(room string) string {
	if strings.HasPrefix(room, conversationRoomPrefix) {
		return "conversation"
	}
	return room
}

// Event is one published payload addressed to a room.
type Event struct {
	Room string          `json:"room"`
	Type model.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Publisher delivers events to a room's subscribers.
type Publisher interface {
	Publish(ev Event) error
}

// Hub is the process-local room registry.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	buffer int
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe joins room. The caller must Close the subscription.
func (h *Hub) Subscribe(room string) *Subscription {
	sub := &Subscription{
		room: room,
		ch:   make(chan Event, h.buffer),
		hub:  h,
	}

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscription]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()

	metrics.LiveSubscribed(roomScope(room), 1)
	return sub
}

// Publish delivers ev to every current subscriber of ev.Room without
// blocking. Full subscriber buffers drop the event.
func (h *Hub) Publish(ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[ev.Room] {
		select {
		case sub.ch <- ev:
		default:
			metrics.LiveEventsDropped.Inc()
		}
	}
	return nil
}

// Subscribers returns the number of subscribers in room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) leave(sub *Subscription) {
	h.mu.Lock()
	if members, ok := h.rooms[sub.room]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, sub.room)
		}
	}
	close(sub.ch)
	h.mu.Unlock()

	metrics.LiveSubscribed(roomScope(sub.room), -1)
}

// Subscription is one member of a room.
type Subscription struct {
	room string
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Room returns the subscribed room.
func (s *Subscription) Room() string {
	return s.room
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close leaves the room. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.leave(s) })
}
