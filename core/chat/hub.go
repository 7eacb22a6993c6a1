package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// OutboundBuffer is how many messages a subscriber may lag behind before it starts missing some.
	OutboundBuffer    = 16
	HeartbeatInterval = 15 * time.Second
)

// Subscription is one client listening to a room.
type Subscription struct {
	ID       string
	UserID   string
	Room     string
	Outbound chan Message
}

// Hub fans messages out to the subscribers of a room, on this instance only.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	onDrop func(sub *Subscription, msg Message)
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscription]struct{})}
}

// OnDrop sets a callback run when a message is dropped for a slow subscriber.
func (hub *Hub) OnDrop(fn func(sub *Subscription, msg Message)) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.onDrop = fn
}

func (hub *Hub) Subscribe(room, userID string) *Subscription {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	sub := &Subscription{
		ID:       uuid.New().String(),
		UserID:   userID,
		Room:     room,
		Outbound: make(chan Message, OutboundBuffer),
	}
	subs, ok := hub.rooms[room]
	if !ok {
		subs = make(map[*Subscription]struct{})
		hub.rooms[room] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from its room. The Outbound channel is left open, Broadcast may still hold it.
func (hub *Hub) Unsubscribe(sub *Subscription) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if subs, ok := hub.rooms[sub.Room]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(hub.rooms, sub.Room)
		}
	}
}

// Broadcast delivers msg to the room without blocking. Full subscribers miss it.
func (hub *Hub) Broadcast(msg Message) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for sub := range hub.rooms[msg.CourseID] {
		select {
		case sub.Outbound <- msg:
		default:
			if hub.onDrop != nil {
				hub.onDrop(sub, msg)
			}
		}
	}
}

func (hub *Hub) RoomSize(room string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.rooms[room])
}
