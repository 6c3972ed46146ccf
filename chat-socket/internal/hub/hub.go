package hub

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// Hub tracks connections and their room memberships. All membership changes
// are synchronous; only evictions of slow consumers go through Run.
type Hub struct {
	clients map[string]*Client                  // clientID -> client
	rooms   map[domain.Room]map[string]*Client // room -> clientID -> client
	evict   chan *Client
	mu      sync.RWMutex
	config  config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[domain.Room]map[string]*Client),
		evict:   make(chan *Client, 64),
		config:  cfg,
	}
}

// Run evicts clients whose send buffer overflowed and, once ctx is done,
// disconnects every remaining client.
func (h *Hub) Run(ctx context.Context) {
	l := log.L()
	for {
		select {
		case client := <-h.evict:
			l.Warn().Str(log.FieldConnectionID, client.ID).Msg("evicting slow client")
			h.Unregister(client)
			client.closeConn()

		case <-ctx.Done():
			h.mu.RLock()
			remaining := make([]*Client, 0, len(h.clients))
			for _, c := range h.clients {
				remaining = append(remaining, c)
			}
			h.mu.RUnlock()

			for _, c := range remaining {
				h.Unregister(c)
			}
			l.Info().Int("clients", len(remaining)).Msg("hub stopped")
			return
		}
	}
}

// Register adds the client and joins it to the global room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.joinLocked(client, domain.GlobalRoom)
	h.mu.Unlock()

	metrics.ActiveConnections.Inc()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
}

// Unregister releases every membership and closes the send queue. Calling it
// more than once is safe.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	delete(h.clients, client.ID)
	client.closed = true
	close(client.Send)
	h.mu.Unlock()

	metrics.ActiveConnections.Dec()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
}

// Bind binds the client to userID and moves its user-room membership. It
// returns the previously bound user, if any.
func (h *Hub) Bind(client *Client, userID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := client.Session.Bind(userID)
	if _, ok := h.clients[client.ID]; !ok {
		return prev
	}
	if prev != "" && prev != userID {
		h.leaveLocked(client, domain.UserRoom(prev))
	}
	h.joinLocked(client, domain.UserRoom(userID))
	return prev
}

// Join adds the client to room. It reports whether the membership is new.
func (h *Hub) Join(client *Client, room domain.Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	if _, ok := client.rooms[room]; ok {
		return false
	}
	h.joinLocked(client, room)

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Str(log.FieldRoom, room.Key()).Msg("client joined room")
	return true
}

// Leave removes the client from room. Leaving a room the client is not in
// is a no-op and returns false.
func (h *Hub) Leave(client *Client, room domain.Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := client.rooms[room]; !ok {
		return false
	}
	h.leaveLocked(client, room)

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Str(log.FieldRoom, room.Key()).Msg("client left room")
	return true
}

func (h *Hub) joinLocked(client *Client, room domain.Room) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	client.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, room domain.Room) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Deliver queues data on every current member of room without blocking.
// A member whose buffer is full is dropped and scheduled for eviction.
// It returns the number of members the frame was queued for.
func (h *Hub) Deliver(room domain.Room, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, client := range h.rooms[room] {
		if h.trySendLocked(client, data) {
			delivered++
		}
	}
	return delivered
}

// send queues data for a single client.
func (h *Hub) send(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.trySendLocked(client, data)
}

func (h *Hub) trySendLocked(client *Client, data []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		metrics.DeliveriesDropped.Inc()
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, client.ID).Msg("send buffer full, dropping frame")
		select {
		case h.evict <- client:
		default:
		}
		return false
	}
}

// Client returns a registered client by id.
func (h *Hub) Client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Rooms returns the rooms the client is a member of.
func (h *Hub) Rooms(client *Client) []domain.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]domain.Room, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Members returns the client ids currently in room.
func (h *Hub) Members(room domain.Room) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
