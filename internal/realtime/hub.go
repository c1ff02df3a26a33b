package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains room -> set of connections and broadcasts messages. Rooms are
// string keys: a conference ID, or "<conference_id>:host" for the host-only
// sub-room. Uses Redis pub/sub for horizontal scaling: local fan-out plus
// publish to Redis, with self-origin messages skipped on receive.
type Hub struct {
	rooms  map[string]map[string]*Client
	subs   map[string]func() // cancel Redis subscription per room
	mu     sync.RWMutex
	logger *zap.Logger
	pub    RedisPublisher
	sub    RedisSubscriber
}

// RedisPublisher publishes room events for cross-instance broadcast.
type RedisPublisher interface {
	PublishRoomEvent(room string, event string, payload []byte) error
}

// RedisSubscriber subscribes to a room's channel and invokes handler for
// events originating on other instances.
type RedisSubscriber interface {
	SubscribeRoom(room string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis arguments may be nil in
// single-process mode.
func NewHub(logger *zap.Logger, pub RedisPublisher, sub RedisSubscriber) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Join adds a client to a room. Starts the room's Redis subscription when the
// first local client joins.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeRoom(room, func(event string, payload []byte) {
				h.broadcastLocal(room, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[room] = cancel
			} else {
				h.logger.Warn("room subscribe failed", zap.String("room", room), zap.Error(err))
			}
		}
	}
	h.rooms[room][c.ID] = c
	c.rooms[room] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room", room))
}

// Leave removes a client from a room. Cancels the Redis subscription when the
// last local client leaves.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

// LeaveAll removes a client from every room it joined. Called on disconnect.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	m, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.rooms, room)
		if cancel, ok := h.subs[room]; ok {
			cancel()
			delete(h.subs, room)
		}
	}
}

// Broadcast sends an event to every client in a room, locally and via Redis
// for other instances.
func (h *Hub) Broadcast(room string, event string, payload interface{}) {
	h.broadcastLocal(room, event, payload)
	if h.pub != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		if err := h.pub.PublishRoomEvent(room, event, data); err != nil {
			h.logger.Warn("room publish failed", zap.String("room", room), zap.Error(err))
		}
	}
}

func (h *Hub) broadcastLocal(room string, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// RoomSize returns the number of local connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
